package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/huangang/erpsettings/pkg/logger"
	"github.com/huangang/erpsettings/pkg/storage"
)

// Fixed branding asset paths. Uploads always overwrite them.
const (
	LightLogoPath = "assets/img/light_logo.png"
	LogoPath      = "assets/img/logo.png"
	DarkLogoPath  = "assets/img/dark_logo.png"
	FaviconPath   = "assets/img/favicon/favicon.ico"
	ThemePath     = "assets/css/theme.css"
)

// brandingFiles maps each file field to the paths it is written to. The
// first path is the value stored in the setting.
var brandingFiles = map[string][]string{
	"logo_light": {LightLogoPath, LogoPath},
	"logo_dark":  {DarkLogoPath},
	"favicon":    {FaviconPath},
}

// Upload is a file submitted with a settings form.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// IsBrandingFile reports whether key is filled by an upload rather than a
// form value.
func IsBrandingFile(key string) bool {
	_, ok := brandingFiles[key]
	return ok
}

// PrepareBrandingPayload drops every file field that was not uploaded, so
// saving colors never clears a logo, and points uploaded fields at their
// fixed path.
func PrepareBrandingPayload(payload map[string]any, uploads []Upload) map[string]any {
	out := make(map[string]any, len(payload)+len(uploads))
	for k, v := range payload {
		if IsBrandingFile(k) {
			continue
		}
		out[k] = v
	}
	for _, u := range uploads {
		if paths, ok := brandingFiles[u.Field]; ok && len(u.Data) > 0 {
			out[u.Field] = paths[0]
		}
	}
	return out
}

// BrandingAssets writes uploaded branding files to the asset store.
type BrandingAssets struct {
	store storage.Store
}

func NewBrandingAssets(store storage.Store) *BrandingAssets {
	return &BrandingAssets{store: store}
}

// Save writes every recognised upload to its fixed paths.
func (b *BrandingAssets) Save(ctx context.Context, uploads []Upload) error {
	for _, u := range uploads {
		paths, ok := brandingFiles[u.Field]
		if !ok || len(u.Data) == 0 {
			continue
		}
		contentType := u.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(u.Data)
		}
		for _, p := range paths {
			if err := b.store.Put(ctx, p, u.Data, contentType); err != nil {
				return fmt.Errorf("store %s: %w", u.Field, err)
			}
		}
		logger.Info().Str("field", u.Field).Str("path", paths[0]).Int("bytes", len(u.Data)).Msg("[Branding] asset stored")
	}
	return nil
}

// StyleCompiler regenerates derived style artifacts after the branding
// colors change.
type StyleCompiler interface {
	Compile(ctx context.Context, branding map[string]any) error
}

// ThemeCompiler writes a stylesheet of CSS custom properties.
type ThemeCompiler struct {
	store storage.Store
}

func NewThemeCompiler(store storage.Store) *ThemeCompiler {
	return &ThemeCompiler{store: store}
}

func (t *ThemeCompiler) Compile(ctx context.Context, branding map[string]any) error {
	primary := toString(branding["primary_color"])
	if primary == "" {
		primary = "#1f6feb"
	}
	secondary := toString(branding["secondary_color"])
	if secondary == "" {
		secondary = "#6e7781"
	}

	var sb strings.Builder
	sb.WriteString(":root {\n")
	sb.WriteString(fmt.Sprintf("  --color-primary: %s;\n", primary))
	sb.WriteString(fmt.Sprintf("  --color-secondary: %s;\n", secondary))
	sb.WriteString("}\n")
	sb.WriteString(".btn-primary { background-color: var(--color-primary); border-color: var(--color-primary); }\n")
	sb.WriteString("a { color: var(--color-primary); }\n")

	return t.store.Put(ctx, ThemePath, []byte(sb.String()), "text/css; charset=utf-8")
}
