// Package campaign loads the message templates and signature profile of a
// send run from a YAML file, filling unset fields from built-in defaults.
package campaign

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/signature"
	"github.com/example/drip-mailer/internal/util"
)

// DefaultSubject is used when a campaign does not set one.
const DefaultSubject = "Streamlining Operations at {company}"

// DefaultBody is used when a campaign does not set one.
const DefaultBody = `Hi {first_name},

I hope this email finds you well. I noticed that {company} is doing some incredible work lately.

As someone working as a {role}, I thought you might be interested in how our new tools can help streamline your daily operations. We've helped similar teams increase their efficiency by over 20%.

Would you be open to a brief 10-minute chat next week?

Best regards,`

// maxSubjectRunes keeps a rendered subject within one RFC 5322 line.
const maxSubjectRunes = 998

// Campaign is the content of one send run.
type Campaign struct {
	Subject   string            `yaml:"subject"`
	Body      string            `yaml:"body"`
	FromName  string            `yaml:"from_name"`
	Layout    string            `yaml:"layout"`
	Signature signature.Profile `yaml:"signature"`
}

// Defaults returns the built-in campaign.
func Defaults() Campaign {
	return Campaign{
		Subject:  DefaultSubject,
		Body:     DefaultBody,
		FromName: "Jane Doe",
		Layout:   signature.CorporateWithLogo.String(),
		Signature: signature.Profile{
			Name:      "Jane Doe",
			Title:     "Sales Director",
			Company:   "Streamax Technology",
			Phone:     "(555) 123-4567",
			Website:   "https://www.streamax.com",
			AvatarURL: "https://images.unsplash.com/photo-1494790108377-be9c29b29330?auto=format&fit=crop&w=120&q=80",
			LogoURL:   "https://mail.streamax.com/coremail/s?func=lp:getImg&org_id=&img_id=logo_001",
		},
	}
}

// document mirrors Campaign with the signature left nil when the file has no
// signature block.
type document struct {
	Subject   string             `yaml:"subject"`
	Body      string             `yaml:"body"`
	FromName  string             `yaml:"from_name"`
	Layout    string             `yaml:"layout"`
	Signature *signature.Profile `yaml:"signature"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} with the value of a set environment variable.
// Bare $NAME forms and unset names are left as written.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := os.LookupEnv(envRef.FindStringSubmatch(ref)[1]); ok {
			return v
		}
		return ref
	})
}

func expandProfile(p signature.Profile) signature.Profile {
	for _, f := range []*string{&p.Name, &p.Title, &p.Company, &p.Phone, &p.Email, &p.Website, &p.AvatarURL, &p.LogoURL} {
		*f = expandEnv(*f)
	}
	return p
}

// Load reads the campaign file at path. An empty path yields the defaults.
// Environment references such as ${SENDER_PHONE} are expanded in signature
// fields only.
func Load(path string) (*Campaign, error) {
	if strings.TrimSpace(path) == "" {
		c := Defaults()
		return &c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Configuration(fmt.Errorf("campaign: read %s: %w", path, err))
	}
	return Parse(data)
}

// Parse decodes YAML campaign content and merges it over the defaults.
// Unknown keys are rejected. A signature block replaces the default profile
// as a whole; the remaining fields fall back one by one.
func Parse(data []byte) (*Campaign, error) {
	var doc document

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, common.Configuration(fmt.Errorf("campaign: parse: %w", err))
	}

	c := Campaign{
		Subject:  doc.Subject,
		Body:     doc.Body,
		FromName: doc.FromName,
		Layout:   doc.Layout,
	}
	defaults := Defaults()
	profile := defaults.Signature
	defaults.Signature = signature.Profile{}
	if err := mergo.Merge(&c, defaults); err != nil {
		return nil, fmt.Errorf("campaign: merge defaults: %w", err)
	}

	c.Signature = profile
	if doc.Signature != nil {
		c.Signature = expandProfile(*doc.Signature)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks templates and signature links.
func (c Campaign) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Subject) == "" {
		problems = append(problems, "subject is empty")
	}
	if strings.TrimSpace(c.Body) == "" {
		problems = append(problems, "body is empty")
	}
	if err := util.EnsureMaxRunes("subject", c.Subject, maxSubjectRunes); err != nil {
		problems = append(problems, err.Error())
	}

	links := []struct {
		field string
		value string
	}{
		{"signature.website", c.Signature.Website},
		{"signature.avatar_url", c.Signature.AvatarURL},
		{"signature.logo_url", c.Signature.LogoURL},
	}
	for _, link := range links {
		if strings.TrimSpace(link.value) == "" {
			continue
		}
		if _, err := util.ValidateHTTPURL(link.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", link.field, err))
		}
	}

	if c.Signature.Email != "" {
		if _, err := util.NormalizeEmail(c.Signature.Email); err != nil {
			problems = append(problems, fmt.Sprintf("signature.email: %v", err))
		}
	}

	if len(problems) > 0 {
		return common.Configuration(fmt.Errorf("campaign: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// SignatureLayout resolves the configured layout name.
func (c Campaign) SignatureLayout() signature.Layout {
	return signature.ParseLayout(c.Layout)
}

// SignatureBlock composes the signature once for a run. The sender address
// fills in the profile email when the campaign leaves it unset.
func (c Campaign) SignatureBlock(senderAddress string) (string, error) {
	return signature.Compose(c.SignatureLayout(), c.Signature.WithFallbackEmail(senderAddress))
}
