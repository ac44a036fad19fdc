package provider

// Name identifies one of the external SaaS systems the funnel talks to.
type Name string

const (
	SiteBuilder Name = "sitebuilder"
	Billing     Name = "billing"
	MailAdmin   Name = "mailadmin"
	DNS         Name = "dns"
	Postmark    Name = "postmark"
)

// Token is the result of an authentication or refresh call against a
// bearer-auth provider. ExpiresIn is in seconds.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
