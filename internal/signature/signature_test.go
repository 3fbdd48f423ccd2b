package signature

import (
	"html/template"
	"strings"
	"testing"
)

func compose(t *testing.T, l Layout, p Profile) string {
	t.Helper()
	out, err := Compose(l, p)
	if err != nil {
		t.Fatalf("Compose(%s): %v", l, err)
	}
	return out
}

func testProfile() Profile {
	return Profile{
		Name:      "Jane Doe",
		Title:     "Sales Director",
		Company:   "Streamax Technology",
		Phone:     "(555) 123-4567",
		Email:     "jane@example.com",
		Website:   "https://www.example.com",
		AvatarURL: "https://img.example.com/avatar.png",
		LogoURL:   "https://img.example.com/logo.png",
	}
}

func TestParseLayout(t *testing.T) {
	cases := map[string]Layout{
		"minimalist":              Minimalist,
		"Minimalist Professional": Minimalist,
		" CREATIVE ":              CreativeWithAvatar,
		"Creative with Avatar":    CreativeWithAvatar,
		"corporate":               CorporateWithLogo,
		"Corporate with Logo":     CorporateWithLogo,
		"":                        CorporateWithLogo,
		"neon":                    CorporateWithLogo,
	}
	for input, want := range cases {
		if got := ParseLayout(input); got != want {
			t.Fatalf("ParseLayout(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestLayoutStringRoundTrips(t *testing.T) {
	for _, l := range []Layout{Minimalist, CreativeWithAvatar, CorporateWithLogo} {
		if got := ParseLayout(l.String()); got != l {
			t.Fatalf("ParseLayout(%q) = %s, want %s", l.String(), got, l)
		}
	}
}

func TestComposeFieldSubsets(t *testing.T) {
	p := testProfile()

	minimal := compose(t, Minimalist, p)
	for _, want := range []string{"Jane Doe", "Sales Director | Streamax Technology", "jane@example.com | (555) 123-4567"} {
		if !strings.Contains(minimal, want) {
			t.Fatalf("minimalist layout missing %q:\n%s", want, minimal)
		}
	}
	if strings.Contains(minimal, p.AvatarURL) || strings.Contains(minimal, p.LogoURL) {
		t.Fatalf("minimalist layout should not reference images:\n%s", minimal)
	}

	creative := compose(t, CreativeWithAvatar, p)
	for _, want := range []string{`src="https://img.example.com/avatar.png"`, `href="https://www.example.com"`, ">www.example.com</a>"} {
		if !strings.Contains(creative, want) {
			t.Fatalf("creative layout missing %q:\n%s", want, creative)
		}
	}
	if strings.Contains(creative, p.LogoURL) {
		t.Fatalf("creative layout should not reference the logo")
	}

	corporate := compose(t, CorporateWithLogo, p)
	for _, want := range []string{`src="https://img.example.com/logo.png"`, `href="mailto:jane@example.com"`, "<strong>Streamax Technology</strong>"} {
		if !strings.Contains(corporate, want) {
			t.Fatalf("corporate layout missing %q:\n%s", want, corporate)
		}
	}
}

func TestComposeAppendsDisclaimer(t *testing.T) {
	for _, l := range []Layout{Minimalist, CreativeWithAvatar, CorporateWithLogo, Layout(99)} {
		out := compose(t, l, testProfile())
		if !strings.HasSuffix(out, Disclaimer) {
			t.Fatalf("layout %s does not end with the disclaimer", l)
		}
	}
}

func TestComposeUnknownLayoutFallsBackToCorporate(t *testing.T) {
	p := testProfile()
	if compose(t, Layout(42), p) != compose(t, CorporateWithLogo, p) {
		t.Fatalf("expected unknown layout to render the corporate block")
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	p := testProfile()
	if compose(t, CreativeWithAvatar, p) != compose(t, CreativeWithAvatar, p) {
		t.Fatalf("expected stable output for identical inputs")
	}
}

func TestComposeEscapesProfileValues(t *testing.T) {
	p := testProfile()
	p.Name = `<script>alert("x")</script>`

	out := compose(t, Minimalist, p)
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected name to be escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup in output:\n%s", out)
	}
}

func TestComposeReportsRenderFailure(t *testing.T) {
	orig := layouts[Minimalist]
	t.Cleanup(func() { layouts[Minimalist] = orig })
	layouts[Minimalist] = template.Must(template.New("broken").Parse(`<p>{{.Fax}}</p>`))

	out, err := Compose(Minimalist, testProfile())
	if err == nil {
		t.Fatalf("expected render error, got output:\n%s", out)
	}
	if out != "" {
		t.Fatalf("expected no partial output, got %q", out)
	}
}

func TestWithFallbackEmail(t *testing.T) {
	p := testProfile()
	p.Email = " "

	if got := p.WithFallbackEmail("sender@example.com").Email; got != "sender@example.com" {
		t.Fatalf("expected fallback email, got %q", got)
	}

	q := testProfile()
	if got := q.WithFallbackEmail("sender@example.com").Email; got != "jane@example.com" {
		t.Fatalf("expected existing email to be kept, got %q", got)
	}
}
