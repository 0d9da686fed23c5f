package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/middleware"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/pkg/response"
)

const (
	maxUploadSize    = 2 << 20
	maxMultipartSize = 8 << 20
)

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Dashboard lists the categories and modules
// GET /api/settings
func (h *SettingsHandler) Dashboard(c *gin.Context) {
	d, err := h.settings.Dashboard(c.Request.Context(), middleware.ActorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, d)
}

// Public returns the settings readable without a session
// GET /api/settings/public
func (h *SettingsHandler) Public(c *gin.Context) {
	values, err := h.settings.PublicSettings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, values)
}

// Search GET /api/settings/search?q=
func (h *SettingsHandler) Search(c *gin.Context) {
	results, err := h.settings.Search(c.Request.Context(), middleware.ActorFromContext(c), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"query": c.Query("q"), "results": results})
}

// ShowCategory GET /api/settings/system/:category
func (h *SettingsHandler) ShowCategory(c *gin.Context) {
	view, err := h.settings.CategoryView(c.Request.Context(), middleware.ActorFromContext(c), c.Param("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// UpdateCategory accepts a JSON object or a multipart form carrying
// branding files.
// POST /api/settings/system/:category
func (h *SettingsHandler) UpdateCategory(c *gin.Context) {
	req := services.UpdateCategoryRequest{Category: c.Param("category")}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMultipartSize)
		form, err := c.MultipartForm()
		if err != nil {
			response.BadRequest(c, "invalid multipart form")
			return
		}
		req.Values = formValues(form)
		uploads, fieldErrs := formUploads(form)
		if len(fieldErrs) > 0 {
			response.Error(c, &services.ValidationError{Fields: fieldErrs})
			return
		}
		req.Uploads = uploads
	} else {
		if err := c.ShouldBindJSON(&req.Values); err != nil {
			response.BadRequest(c, "request body must be a JSON object")
			return
		}
	}

	result, err := h.settings.UpdateCategory(c.Request.Context(), middleware.ActorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Settings saved successfully.", result)
}

// formValues flattens a multipart form. Keys ending in [] become lists.
func formValues(form *multipart.Form) map[string]any {
	values := make(map[string]any, len(form.Value))
	for k, vs := range form.Value {
		if name, ok := strings.CutSuffix(k, "[]"); ok {
			list := make([]any, 0, len(vs))
			for _, v := range vs {
				list = append(list, v)
			}
			values[name] = list
			continue
		}
		if len(vs) > 0 {
			values[k] = vs[len(vs)-1]
		}
	}
	return values
}

func formUploads(form *multipart.Form) ([]services.Upload, map[string][]string) {
	var uploads []services.Upload
	errs := map[string][]string{}
	for field, files := range form.File {
		if !services.IsBrandingFile(field) || len(files) == 0 {
			continue
		}
		fh := files[0]
		if fh.Size > maxUploadSize {
			errs[field] = append(errs[field], "The file may not be greater than 2048 kilobytes.")
			continue
		}
		data, err := readFormFile(fh)
		if err != nil {
			errs[field] = append(errs[field], "The file could not be read.")
			continue
		}
		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			errs[field] = append(errs[field], "The file must be an image.")
			continue
		}
		uploads = append(uploads, services.Upload{Field: field, Filename: fh.Filename, ContentType: contentType, Data: data})
	}
	return uploads, errs
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type testEmailRequest struct {
	TestEmail string `json:"test_email"`
}

// TestEmail sends a message with the stored email settings. A failed send
// answers 502 with the transport error.
// POST /api/settings/test-email
func (h *SettingsHandler) TestEmail(c *gin.Context) {
	var req testEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "request body must be a JSON object")
		return
	}

	result, err := h.settings.TestEmail(c.Request.Context(), middleware.ActorFromContext(c), req.TestEmail)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Sent {
		c.JSON(http.StatusBadGateway, response.Response{
			Code:    http.StatusBadGateway,
			Message: "Failed to send test email: " + result.Error,
			Data:    result,
		})
		return
	}
	response.Message(c, "Test email sent successfully to "+req.TestEmail+".", result)
}

// Export downloads every setting as JSON
// GET /api/settings/export
func (h *SettingsHandler) Export(c *gin.Context) {
	doc, err := h.settings.Export(c.Request.Context(), middleware.ActorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "settings-export-"+exportStamp(doc.ExportedAt)+".json", "application/json", body)
}

// Import POST /api/settings/import (multipart field "file")
func (h *SettingsHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxImportSize+64<<10)
	fh, err := c.FormFile("file")
	if err != nil {
		response.Unprocessable(c, "The given data was invalid.", map[string][]string{"file": {"The file field is required."}})
		return
	}
	if !strings.EqualFold(pathExt(fh.Filename), ".json") {
		response.Unprocessable(c, "The given data was invalid.", map[string][]string{"file": {"The file must be a file of type: json."}})
		return
	}
	if fh.Size > services.MaxImportSize {
		response.Unprocessable(c, "The given data was invalid.", map[string][]string{"file": {"The file may not be greater than 2048 kilobytes."}})
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		response.BadRequest(c, "the uploaded file could not be read")
		return
	}

	result, err := h.settings.Import(c.Request.Context(), middleware.ActorFromContext(c), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Settings imported successfully.", result)
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func exportStamp(t time.Time) string {
	return t.Format("2006-01-02-150405")
}
