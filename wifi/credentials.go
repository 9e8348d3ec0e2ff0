package wifi

// CredentialsKind selects the authentication scheme used to join a network.
type CredentialsKind int

const (
	CredentialsNone CredentialsKind = iota
	CredentialsWEP
	CredentialsWPA
	CredentialsEnterprise
)

func (k CredentialsKind) String() string {
	switch k {
	case CredentialsWEP:
		return "wep"
	case CredentialsWPA:
		return "wpa"
	case CredentialsEnterprise:
		return "enterprise"
	default:
		return "none"
	}
}

// Credentials are the secrets handed to the backend when joining a network.
// Identity is only meaningful for enterprise networks.
type Credentials struct {
	Kind       CredentialsKind
	Identity   string
	Passphrase string
}

// CredentialsFor builds credentials for ap. The first matching flag wins in
// the order enterprise, WPA/WPA2, WEP, none.
func CredentialsFor(ap AccessPoint, identity, passphrase string) Credentials {
	switch {
	case ap.Security.Has(SecurityEnterprise):
		return Credentials{Kind: CredentialsEnterprise, Identity: identity, Passphrase: passphrase}
	case ap.Security.Has(SecurityWPA2), ap.Security.Has(SecurityWPA):
		return Credentials{Kind: CredentialsWPA, Passphrase: passphrase}
	case ap.Security.Has(SecurityWEP):
		return Credentials{Kind: CredentialsWEP, Passphrase: passphrase}
	default:
		return Credentials{Kind: CredentialsNone}
	}
}
