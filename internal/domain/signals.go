package domain

// Signal is a phishing indicator tag recorded in a task's risk reasons.
type Signal string

const (
	SignalImpersonatingTitle      Signal = "impersonatingTitle"
	SignalInternalRedirect        Signal = "internalRedirect"
	SignalExternalRedirect        Signal = "externalRedirect"
	SignalCredentialForm          Signal = "hasCredentialForm"
	SignalFormPostsThirdParty     Signal = "formPostsThirdParty"
	SignalBrandImage              Signal = "brandImage"
	SignalLogoImage               Signal = "logoImage"
	SignalObfuscatedJS            Signal = "obfuscatedJS"
	SignalHiddenIframe            Signal = "hiddenIframe"
	SignalUnexpectedOAuthRedirect Signal = "unexpectedOAuthRedirect"
)

// Signals lists every recognised signal in reporting order.
var Signals = []Signal{
	SignalImpersonatingTitle,
	SignalInternalRedirect,
	SignalExternalRedirect,
	SignalCredentialForm,
	SignalFormPostsThirdParty,
	SignalBrandImage,
	SignalLogoImage,
	SignalObfuscatedJS,
	SignalHiddenIframe,
	SignalUnexpectedOAuthRedirect,
}

// KnownSignal reports whether name is a recognised signal tag.
func KnownSignal(name string) bool {
	for _, s := range Signals {
		if string(s) == name {
			return true
		}
	}
	return false
}
