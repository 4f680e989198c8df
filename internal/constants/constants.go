package constants

const (
	AppSessionAgent = "storefront-session-agent"
	AudienceStore   = "audience-storefront"
	IssuerAccounts  = "copperbear-accounts"
)
