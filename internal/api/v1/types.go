package apiv1

// StartTrialRequest begins (or resumes) a trial for an email + site name pair
type StartTrialRequest struct {
	Email      string `json:"email" validate:"required,email,min=5,max=200"`
	SiteName   string `json:"site_name" validate:"required,min=3,max=100,hostname_rfc1123"`
	ChurchName string `json:"church_name" validate:"max=200"`
}

// CreatePreviewRequest provisions the builder site for an existing trial
type CreatePreviewRequest struct {
	Email      string `json:"email" validate:"required,email"`
	SiteName   string `json:"site_name" validate:"required,min=3,max=100"`
	TemplateID string `json:"template_id" validate:"required,max=64"`
}

// CreateInvoiceRequest raises the upgrade invoice for a trial
type CreateInvoiceRequest struct {
	Email    string `json:"email" validate:"required,email"`
	SiteName string `json:"site_name" validate:"required,min=3,max=100"`
}

// EditorLinkRequest asks for a fresh single-sign-on editor link
type EditorLinkRequest struct {
	Email    string `json:"email" validate:"required,email"`
	SiteName string `json:"site_name" validate:"required,min=3,max=100"`
}

// PublishSiteRequest takes a paid site live
type PublishSiteRequest struct {
	SiteName  string `json:"site_name" validate:"required,min=3,max=100"`
	InvoiceID string `json:"invoice_id" validate:"required,max=64"`
}

// Pong is the ping response
type Pong struct {
	Ping string `json:"ping"`
}
