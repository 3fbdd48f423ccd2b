// Package signature renders the HTML signature block appended to every
// message of a run.
package signature

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Layout selects how a Profile is arranged.
type Layout int

const (
	// CorporateWithLogo is the zero value and the fallback for unknown names.
	CorporateWithLogo Layout = iota
	Minimalist
	CreativeWithAvatar
)

// String returns the identifier accepted by ParseLayout.
func (l Layout) String() string {
	switch l {
	case Minimalist:
		return "minimalist"
	case CreativeWithAvatar:
		return "creative"
	default:
		return "corporate"
	}
}

// ParseLayout maps a layout identifier or display name to a Layout.
// Unrecognized values fall back to CorporateWithLogo.
func ParseLayout(name string) Layout {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "minimalist", "minimalist professional":
		return Minimalist
	case "creative", "creative with avatar":
		return CreativeWithAvatar
	default:
		return CorporateWithLogo
	}
}

// Profile holds the display fields of a signature.
type Profile struct {
	Name      string `yaml:"name"`
	Title     string `yaml:"title"`
	Company   string `yaml:"company"`
	Phone     string `yaml:"phone"`
	Email     string `yaml:"email"`
	Website   string `yaml:"website"`
	AvatarURL string `yaml:"avatar_url"`
	LogoURL   string `yaml:"logo_url"`
}

// WithFallbackEmail returns a copy of p whose Email is addr when p has none.
func (p Profile) WithFallbackEmail(addr string) Profile {
	if strings.TrimSpace(p.Email) == "" {
		p.Email = strings.TrimSpace(addr)
	}
	return p
}

// Disclaimer is appended verbatim after every layout.
const Disclaimer = `
<div style="margin-top: 25px; padding-top: 15px; border-top: 1px solid #e2e8f0; font-family: Arial, sans-serif; font-size: 10px; color: #64748b; line-height: 1.4; text-align: justify;">
    <strong>Email Disclaimer:</strong> This e-mail is intended only for the person or entity to which it is addressed and may contain confidential and/or privileged material. Any review, retransmission, dissemination or other use of, or taking of any action in reliance upon, the information in this e-mail by persons or entities other than the intended recipient is prohibited and may be unlawful. If you received this e-mail in error, please contact the sender and delete it from any computer.
</div>
`

var layouts = map[Layout]*template.Template{
	Minimalist: template.Must(template.New("minimalist").Parse(`
<div style="font-family: Arial, sans-serif; color: #333; margin-top: 20px; border-top: 1px solid #eee; padding-top: 15px;">
    <p style="margin: 0; font-weight: bold; font-size: 14px;">{{.Name}}</p>
    <p style="margin: 0; font-size: 12px; color: #666;">{{.Title}} | {{.Company}}</p>
    <p style="margin: 0; font-size: 12px; color: #0066cc;">{{.Email}} | {{.Phone}}</p>
</div>`)),
	CreativeWithAvatar: template.Must(template.New("creative").Parse(`
<div style="font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; margin-top: 20px; display: flex; align-items: center; gap: 15px;">
    <img src="{{.AvatarURL}}" alt="Avatar" style="width: 60px; height: 60px; border-radius: 50%; object-fit: cover; border: 2px solid #e2e8f0;" />
    <div>
        <p style="margin: 0; font-weight: 600; font-size: 15px; color: #1e293b;">{{.Name}}</p>
        <p style="margin: 2px 0; font-size: 13px; color: #64748b;">{{.Title}}</p>
        <p style="margin: 2px 0; font-size: 13px; color: #3b82f6;">{{.Email}} <span style="color: #94a3b8;">|</span> <span style="color: #64748b;">{{.Phone}}</span></p>
        <a href="{{.Website}}" style="margin: 0; font-size: 13px; color: #3b82f6; text-decoration: none;">{{.WebsiteLabel}}</a>
    </div>
</div>`)),
	CorporateWithLogo: template.Must(template.New("corporate").Parse(`
<div style="font-family: Arial, sans-serif; margin-top: 25px;">
    <p style="margin: 0; font-weight: bold; font-size: 14px; color: #0f172a;">{{.Name}}</p>
    <p style="margin: 2px 0 5px 0; font-size: 12px; color: #475569;">{{.Title}}</p>
    <p style="margin: 0; font-size: 12px; color: #2563eb;"><strong>{{.Company}}</strong></p>
    <p style="margin: 4px 0 12px 0; font-size: 12px; color: #475569;">
        <a href="mailto:{{.Email}}" style="color: #2563eb; text-decoration: none;">{{.Email}}</a> | {{.Phone}}
    </p>
    <img src="{{.LogoURL}}" alt="Company Logo" style="height: 45px; border-radius: 4px;" />
</div>`)),
}

type view struct {
	Profile
	WebsiteLabel string
}

// Compose renders p with the given layout followed by Disclaimer. Profile
// values are HTML-escaped. The result depends only on its inputs.
func Compose(layout Layout, p Profile) (string, error) {
	tmpl, ok := layouts[layout]
	if !ok {
		tmpl = layouts[CorporateWithLogo]
	}

	v := view{
		Profile:      p,
		WebsiteLabel: strings.TrimPrefix(p.Website, "https://"),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("signature: render %s: %w", layout, err)
	}
	buf.WriteString("\n")
	buf.WriteString(Disclaimer)
	return buf.String(), nil
}
