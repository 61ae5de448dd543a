package handler

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"certstamp/internal/qrcode"
	"certstamp/internal/service"
	"certstamp/internal/stamper"
)

const (
	// UploadField is the multipart field carrying the PDF.
	UploadField = "pdf"

	HeaderCertificateHash = "X-Certificate-Hash"
	HeaderCertificateID   = "X-Certificate-ID"
	HeaderLogWarning      = "X-Log-Warning"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; all certificate logic lives in the service.
func RegisterRoutes(app *fiber.App, svc service.CertificateService) {
	app.Get("/health", HealthCheck(svc))
	app.Get("/healthz", LivenessProbe())

	app.Post("/certificates", IssueCertificate(svc))
	app.Get("/certificates", ListCertificates(svc))
	app.Get("/certificates/:hash/qr", CertificateQR(svc))

	app.Get("/verify", VerifyCertificate(svc))
	app.Post("/verify", VerifyCertificate(svc))
}

// HealthCheck probes the certificate log.
//
// @Summary  Readiness probe
// @Tags     health
// @Produce  json
// @Success  200 {object} map[string]string
// @Failure  503 {object} errorPayload
// @Router   /health [get]
func HealthCheck(svc service.CertificateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, CodeServiceUnavailable, "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200 while the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// IssueCertificate stamps an uploaded PDF and returns it as an attachment.
//
// @Summary  Issue a certificate
// @Tags     certificates
// @Accept   multipart/form-data
// @Produce  application/pdf
// @Param    pdf formData file true "PDF document"
// @Success  200 {file} binary
// @Failure  400 {object} errorPayload
// @Failure  422 {object} errorPayload
// @Router   /certificates [post]
func IssueCertificate(svc service.CertificateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile(UploadField)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "pdf file is required")
		}
		name := filepath.Base(fh.Filename)
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_TYPE", "only .pdf files are accepted")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		res, err := svc.Issue(c.UserContext(), f, name)
		if err != nil {
			switch {
			case errors.Is(err, stamper.ErrUnsupportedFormat), errors.Is(err, stamper.ErrEmptyDocument):
				return writeError(c, fiber.StatusBadRequest, "INVALID_PDF", "file is not a readable pdf")
			case errors.Is(err, stamper.ErrPageOutOfRange):
				return writeError(c, fiber.StatusUnprocessableEntity, "PAGE_OUT_OF_RANGE", "document has fewer pages than the stamp layout")
			case errors.Is(err, qrcode.ErrEncodingOverflow):
				return writeError(c, fiber.StatusUnprocessableEntity, "QR_OVERFLOW", "qr payload too large")
			case errors.Is(err, service.ErrNameRequired):
				return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_NAME", "file name is required")
			}
			return writeError(c, fiber.StatusInternalServerError, CodeInternal, "internal server error")
		}

		c.Set(HeaderCertificateHash, res.Digest)
		if res.Certificate != nil {
			c.Set(HeaderCertificateID, res.Certificate.ID)
		}
		if res.LogErr != nil {
			c.Set(HeaderLogWarning, "certificate issued but the log could not be fully updated")
		}
		c.Attachment("modified_" + name)
		return c.Send(res.Document)
	}
}

// VerifyCertificate looks up a hash from the query string (GET) or form (POST).
//
// @Summary  Verify a certificate hash
// @Tags     certificates
// @Produce  json
// @Param    hash query string false "SHA-256 hex digest"
// @Success  200 {object} model.VerifyResult
// @Failure  500 {object} errorPayload
// @Router   /verify [get]
// @Router   /verify [post]
func VerifyCertificate(svc service.CertificateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hash := c.Query("hash")
		if c.Method() == fiber.MethodPost {
			hash = c.FormValue("hash", hash)
		}
		res, err := svc.Verify(c.UserContext(), hash)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "LOG_UNAVAILABLE", "certificate log unavailable")
		}
		return c.JSON(res)
	}
}

// ListCertificates pages through the certificate log.
//
// @Summary  List issued certificates
// @Tags     certificates
// @Produce  json
// @Param    limit  query int false "page size" default(10)
// @Param    offset query int false "offset" default(0)
// @Success  200 {object} service.CertificateListResult
// @Failure  400 {object} errorPayload
// @Router   /certificates [get]
func ListCertificates(svc service.CertificateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "LOG_UNAVAILABLE", "certificate log unavailable")
		}
		return c.JSON(res)
	}
}

// CertificateQR serves the QR image of an issued digest.
//
// @Summary  QR code of an issued certificate
// @Tags     certificates
// @Produce  png
// @Param    hash path string true "SHA-256 hex digest"
// @Success  200 {file} binary
// @Failure  404 {object} errorPayload
// @Router   /certificates/{hash}/qr [get]
func CertificateQR(svc service.CertificateService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		png, err := svc.QRCode(c.UserContext(), c.Params("hash"))
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, CodeNotFound, "certificate not found")
			}
			return writeError(c, fiber.StatusInternalServerError, CodeInternal, "internal server error")
		}
		c.Type("png")
		return c.Send(png)
	}
}
