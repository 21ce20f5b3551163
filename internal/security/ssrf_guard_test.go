package security

import (
	"testing"
	"time"
)

func TestValidateURL_AllowsPublicHosts(t *testing.T) {
	g := NewSSRFGuard()

	urls := []string{
		"https://example.com/",
		"http://example.com/favicon.ico",
		"https://news.example.co.jp/articles/1",
		"https://93.184.216.34/",
	}

	for _, u := range urls {
		if err := g.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURL_BlocksPrivateAddresses(t *testing.T) {
	g := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{name: "RFC1918 10.x", url: "http://10.0.0.1/"},
		{name: "RFC1918 172.16.x", url: "http://172.16.0.1/"},
		{name: "RFC1918 192.168.x", url: "http://192.168.1.1/"},
		{name: "ループバック", url: "http://127.0.0.1/"},
		{name: "localhost", url: "http://localhost/"},
		{name: "クラウドメタデータIP", url: "http://169.254.169.254/latest/meta-data/"},
		{name: "IPv6ループバック", url: "http://[::1]/"},
		{name: "IPv6リンクローカル", url: "http://[fe80::1]/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", tt.url)
			}
		})
	}
}

func TestValidateURL_BlocksDisallowedSchemes(t *testing.T) {
	g := NewSSRFGuard()

	urls := []string{
		"ftp://example.com/",
		"file:///etc/passwd",
		"gopher://example.com/",
	}

	for _, u := range urls {
		if err := g.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

func TestValidateURL_BlocksMalformedURLs(t *testing.T) {
	g := NewSSRFGuard()

	urls := []string{
		"",
		"https://",
		"not a url",
	}

	for _, u := range urls {
		if err := g.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

func TestNewSafeClient(t *testing.T) {
	g := NewSSRFGuard()

	client := g.NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient がnilを返した")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("タイムアウト = %v, want %v", client.Timeout, 5*time.Second)
	}
}
