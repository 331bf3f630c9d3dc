package services

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"

	"github.com/yungbote/coursehub-backend/internal/clients/gcp"
	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

const (
	certificateWidth  = 1600
	certificateHeight = 1130
)

type CertificateResult struct {
	EnrollmentID uuid.UUID
	// URL is set when the certificate lives in the bucket.
	URL string
	// PNG is set when the image was rendered for this call.
	PNG []byte
}

type CertificateService interface {
	// Render returns the caller's certificate for courseID.
	Render(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*CertificateResult, error)
	// Publish renders and uploads the certificate for an issued enrollment and
	// records its URL. Without a bucket it returns "".
	Publish(dbc dbctx.Context, enrollment *types.Enrollment) (string, error)
}

type certificateFaces struct {
	title font.Face
	name  font.Face
	body  font.Face
}

type certificateService struct {
	log         *logger.Logger
	users       repos.UserRepo
	courses     repos.CourseRepo
	enrollments repos.EnrollmentRepo
	bucket      gcp.BucketService
	faces       certificateFaces
	issuer      string
}

// NewCertificateService renders with the built-in face when fontPath is empty.
// bucket may be nil.
func NewCertificateService(
	log *logger.Logger,
	users repos.UserRepo,
	courses repos.CourseRepo,
	enrollments repos.EnrollmentRepo,
	bucket gcp.BucketService,
	fontPath string,
) (CertificateService, error) {
	serviceLog := log.With("service", "CertificateService")
	faces := certificateFaces{}
	if p := strings.TrimSpace(fontPath); p != "" {
		serviceLog.Info("Loading certificate font", "font", p)
		var err error
		if faces.title, err = loadFontFace(p, 72); err != nil {
			return nil, fmt.Errorf("could not load certificate font: %w", err)
		}
		faces.name, _ = loadFontFace(p, 64)
		faces.body, _ = loadFontFace(p, 30)
	}
	return &certificateService{
		log:         serviceLog,
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		bucket:      bucket,
		faces:       faces,
		issuer:      "CourseHub",
	}, nil
}

func (s *certificateService) Render(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*CertificateResult, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id required")
	}
	e, err := s.enrollments.GetByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("load enrollment", err)
	}
	if e == nil {
		return nil, apierr.ErrNotEnrolled
	}
	if !e.CertificateIssued {
		return nil, apierr.Wrap(apierr.ErrNotFound, "certificate not issued yet")
	}
	if e.CertificateURL != "" {
		return &CertificateResult{EnrollmentID: e.ID, URL: e.CertificateURL}, nil
	}

	png, err := s.draw(dbc, e)
	if err != nil {
		return nil, err
	}
	out := &CertificateResult{EnrollmentID: e.ID, PNG: png}
	if s.bucket != nil {
		url, err := s.upload(dbc, e, png)
		if err != nil {
			s.log.Warn("Certificate upload failed, streaming instead", "enrollment_id", e.ID, "error", err)
		} else {
			out.URL = url
		}
	}
	return out, nil
}

func (s *certificateService) Publish(dbc dbctx.Context, e *types.Enrollment) (string, error) {
	if e == nil || !e.CertificateIssued {
		return "", fmt.Errorf("certificate not issued")
	}
	if s.bucket == nil {
		return "", nil
	}
	if e.CertificateURL != "" {
		return e.CertificateURL, nil
	}
	png, err := s.draw(dbc, e)
	if err != nil {
		return "", err
	}
	return s.upload(dbc, e, png)
}

func (s *certificateService) upload(dbc dbctx.Context, e *types.Enrollment, png []byte) (string, error) {
	key := certificateKey(e.ID)
	if err := s.bucket.UploadFile(dbc, gcp.BucketCategoryCertificate, key, bytes.NewReader(png)); err != nil {
		return "", fmt.Errorf("upload certificate: %w", err)
	}
	url := s.bucket.GetPublicURL(gcp.BucketCategoryCertificate, key)
	if err := s.enrollments.SetCertificateURL(dbc, e.ID, url); err != nil {
		return "", dberr.Map("store certificate url", err)
	}
	e.CertificateURL = url
	return url, nil
}

func certificateKey(enrollmentID uuid.UUID) string {
	return fmt.Sprintf("certificates/%s.png", enrollmentID.String())
}

func (s *certificateService) draw(dbc dbctx.Context, e *types.Enrollment) ([]byte, error) {
	users, err := s.users.GetByIDs(dbc, []uuid.UUID{e.UserID})
	if err != nil {
		return nil, dberr.Map("load user", err)
	}
	if len(users) == 0 {
		return nil, apierr.Wrap(apierr.ErrNotFound, "user %s", e.UserID)
	}
	course, err := s.courses.GetByID(dbc, e.CourseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", e.CourseID)
	}
	issuedAt := time.Now().UTC()
	if e.CertificateIssuedAt != nil {
		issuedAt = *e.CertificateIssuedAt
	}
	return renderCertificatePNG(s.faces, certificateText{
		Issuer:   s.issuer,
		Name:     firstNonEmpty(strings.TrimSpace(users[0].FullName()), users[0].Email),
		Course:   course.Title,
		IssuedAt: issuedAt,
		Serial:   e.ID.String(),
	})
}

type certificateText struct {
	Issuer   string
	Name     string
	Course   string
	IssuedAt time.Time
	Serial   string
}

func renderCertificatePNG(faces certificateFaces, t certificateText) ([]byte, error) {
	const w, h = float64(certificateWidth), float64(certificateHeight)
	dc := gg.NewContext(certificateWidth, certificateHeight)

	dc.SetColor(color.NRGBA{R: 250, G: 247, B: 240, A: 255})
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	dc.SetColor(color.NRGBA{R: 38, G: 70, B: 83, A: 255})
	dc.SetLineWidth(14)
	dc.DrawRectangle(40, 40, w-80, h-80)
	dc.Stroke()
	dc.SetLineWidth(3)
	dc.DrawRectangle(70, 70, w-140, h-140)
	dc.Stroke()

	line := func(face font.Face, text string, y float64, c color.Color) {
		if face != nil {
			dc.SetFontFace(face)
		}
		dc.SetColor(c)
		dc.DrawStringWrapped(text, w/2, y, 0.5, 0.5, w-300, 1.4, gg.AlignCenter)
	}
	ink := color.NRGBA{R: 33, G: 37, B: 41, A: 255}
	accent := color.NRGBA{R: 231, G: 111, B: 81, A: 255}

	line(faces.body, strings.ToUpper(t.Issuer), 190, accent)
	line(faces.title, "Certificate of Completion", 300, ink)
	line(faces.body, "This certifies that", 430, ink)
	line(faces.name, t.Name, 530, accent)
	line(faces.body, "has successfully completed", 640, ink)
	line(faces.name, t.Course, 740, ink)
	line(faces.body, "Issued "+t.IssuedAt.Format("January 2, 2006"), 880, ink)
	line(faces.body, "Certificate ID "+t.Serial, 950, color.NRGBA{R: 108, G: 117, B: 125, A: 255})

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
