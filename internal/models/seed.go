package models

var publicKeys = map[string]bool{
	"app_name":         true,
	"app_url":          true,
	"default_timezone": true,
	"default_currency": true,
	"currency_symbol":  true,
	"date_format":      true,
	"primary_color":    true,
	"secondary_color":  true,
	"logo_light":       true,
	"logo_dark":        true,
	"favicon":          true,
	"footer_text":      true,
}

// DefaultMetadata returns the built-in field descriptors for the system
// categories general, email, branding and security.
func DefaultMetadata() []SettingMetadata {
	return []SettingMetadata{
		// general
		{Category: "general", Key: "app_name", Label: "Application Name", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"string", "max:100"}, SortOrder: 1, IsRequired: true, DefaultValue: "ERP"},
		{Category: "general", Key: "app_url", Label: "Application URL", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"url"}, SortOrder: 2, DefaultValue: "http://localhost:8080"},
		{Category: "general", Key: "default_timezone", Label: "Default Timezone", Type: TypeString, InputType: "select",
			ValidationRules: StringList{"string", "timezone"}, SortOrder: 3, IsRequired: true, DefaultValue: "UTC",
			HelpText: "IANA timezone identifier, e.g. Europe/Berlin"},
		{Category: "general", Key: "default_currency", Label: "Default Currency", Type: TypeString, InputType: "select",
			Options: StringList{"USD", "EUR", "GBP", "JPY", "CNY", "INR", "AUD", "CAD", "CHF", "NGN"},
			ValidationRules: StringList{"string", "in:USD,EUR,GBP,JPY,CNY,INR,AUD,CAD,CHF,NGN"}, SortOrder: 4, IsRequired: true, DefaultValue: "USD",
			HelpText: "The currency symbol is derived automatically"},
		{Category: "general", Key: "currency_symbol", Label: "Currency Symbol", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"string", "max:5"}, SortOrder: 5, DefaultValue: "$"},
		{Category: "general", Key: "date_format", Label: "Date Format", Type: TypeString, InputType: "select",
			Options: StringList{"Y-m-d", "d/m/Y", "m/d/Y", "d.m.Y"},
			ValidationRules: StringList{"string", "in:Y-m-d,d/m/Y,m/d/Y,d.m.Y"}, SortOrder: 6, DefaultValue: "Y-m-d"},
		{Category: "general", Key: "items_per_page", Label: "Items Per Page", Type: TypeInteger, InputType: "number",
			ValidationRules: StringList{"integer", "min:5", "max:200"}, SortOrder: 7, DefaultValue: "25"},

		// email
		{Category: "email", Key: "mail_mailer", Label: "Mailer", Type: TypeString, InputType: "select",
			Options: StringList{"smtp", "log"}, ValidationRules: StringList{"string", "in:smtp,log"}, SortOrder: 1, IsRequired: true, DefaultValue: "smtp"},
		{Category: "email", Key: "mail_host", Label: "SMTP Host", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 2, DefaultValue: "localhost"},
		{Category: "email", Key: "mail_port", Label: "SMTP Port", Type: TypeInteger, InputType: "number",
			ValidationRules: StringList{"integer", "min:1", "max:65535"}, SortOrder: 3, DefaultValue: "587"},
		{Category: "email", Key: "mail_username", Label: "SMTP Username", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 4},
		{Category: "email", Key: "mail_password", Label: "SMTP Password", Type: TypeString, InputType: "password",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 5},
		{Category: "email", Key: "mail_encryption", Label: "Encryption", Type: TypeString, InputType: "select",
			Options: StringList{"tls", "starttls", "none"}, ValidationRules: StringList{"string", "in:tls,starttls,none"}, SortOrder: 6, DefaultValue: "starttls"},
		{Category: "email", Key: "mail_from_address", Label: "From Address", Type: TypeString, InputType: "email",
			ValidationRules: StringList{"email"}, SortOrder: 7, IsRequired: true, DefaultValue: "noreply@example.com"},
		{Category: "email", Key: "mail_from_name", Label: "From Name", Type: TypeString, InputType: "text",
			ValidationRules: StringList{"string", "max:100"}, SortOrder: 8, DefaultValue: "ERP"},

		// branding
		{Category: "branding", Key: "primary_color", Label: "Primary Color", Type: TypeString, InputType: "color",
			ValidationRules: StringList{"hexcolor"}, SortOrder: 1, DefaultValue: "#1f6feb",
			HelpText: "Changing this regenerates the theme stylesheet"},
		{Category: "branding", Key: "secondary_color", Label: "Secondary Color", Type: TypeString, InputType: "color",
			ValidationRules: StringList{"hexcolor"}, SortOrder: 2, DefaultValue: "#6e7781"},
		{Category: "branding", Key: "logo_light", Label: "Logo (light)", Type: TypeString, InputType: "file",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 3},
		{Category: "branding", Key: "logo_dark", Label: "Logo (dark)", Type: TypeString, InputType: "file",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 4},
		{Category: "branding", Key: "favicon", Label: "Favicon", Type: TypeString, InputType: "file",
			ValidationRules: StringList{"string", "max:255"}, SortOrder: 5},
		{Category: "branding", Key: "footer_text", Label: "Footer Text", Type: TypeString, InputType: "textarea",
			ValidationRules: StringList{"string", "max:500"}, SortOrder: 6},

		// security
		{Category: "security", Key: "session_lifetime", Label: "Session Lifetime (minutes)", Type: TypeInteger, InputType: "number",
			ValidationRules: StringList{"integer", "min:5", "max:1440"}, SortOrder: 1, IsRequired: true, DefaultValue: "120"},
		{Category: "security", Key: "password_min_length", Label: "Minimum Password Length", Type: TypeInteger, InputType: "number",
			ValidationRules: StringList{"integer", "min:6", "max:64"}, SortOrder: 2, DefaultValue: "8"},
		{Category: "security", Key: "max_login_attempts", Label: "Max Login Attempts", Type: TypeInteger, InputType: "number",
			ValidationRules: StringList{"integer", "min:1", "max:20"}, SortOrder: 3, DefaultValue: "5"},
		{Category: "security", Key: "enable_two_factor", Label: "Two-Factor Authentication", Type: TypeBoolean, InputType: "toggle",
			ValidationRules: StringList{"boolean"}, SortOrder: 4, DefaultValue: "false"},
		{Category: "security", Key: "allowed_ips", Label: "Allowed IP Addresses", Type: TypeArray, InputType: "tags",
			ValidationRules: StringList{"array"}, SortOrder: 5, DefaultValue: "[]",
			HelpText: "Leave empty to allow all addresses"},
	}
}

// DefaultSettings returns one system setting per default metadata row.
func DefaultSettings() []SystemSetting {
	metas := DefaultMetadata()
	out := make([]SystemSetting, 0, len(metas))
	for _, m := range metas {
		out = append(out, SystemSetting{
			Key:         m.Key,
			Value:       m.DefaultValue,
			Type:        m.Type,
			Category:    m.Category,
			Description: m.Label,
			IsPublic:    publicKeys[m.Key],
		})
	}
	return out
}
