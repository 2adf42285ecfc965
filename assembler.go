package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	reportsSubdir    = "test-reports"
	reportFont       = "Helvetica"
	reportTitle      = "Test Execution Report"
	reportCreator    = "harness"
	reportDescriptor = "This report contains screenshots captured during test execution."
)

// ReportOutputPath returns the timestamped PDF path for a report made at t
func ReportOutputPath(outputDir string, t time.Time) string {
	return filepath.Join(outputDir, reportsSubdir, "TestReport-"+t.Format(reportTimeFormat)+".pdf")
}

// SkippedImage is an image the assembler could not embed
type SkippedImage struct {
	Image DiscoveredImage
	Err   error
}

// AssembleResult describes a written report
type AssembleResult struct {
	Path    string
	Pages   int
	Images  int
	Skipped []SkippedImage
}

// Assembler lays discovered images out into a PDF, one page each
type Assembler struct {
	cfg    *EffectiveConfig
	logger *RunLogger
	now    func() time.Time
}

// NewAssembler creates an assembler describing the environment in cfg
func NewAssembler(cfg *EffectiveConfig, logger *RunLogger) *Assembler {
	return &Assembler{cfg: cfg, logger: logger, now: time.Now}
}

// environmentLines are printed on the title page
func (a *Assembler) environmentLines() []string {
	osLine := fmt.Sprintf("OS: %s/%s", runtime.GOOS, runtime.GOARCH)
	if a.cfg.ContainerMode {
		osLine += " (container)"
	}
	mode := "Headed"
	if a.cfg.Headless {
		mode = "Headless"
	}
	return []string{
		osLine,
		fmt.Sprintf("Browser: %s (%s)", a.cfg.Browser, mode),
		fmt.Sprintf("Window: %dx%d", a.cfg.WindowWidth, a.cfg.WindowHeight),
		"Framework: harness with chromedp, playwright-go and rod",
	}
}

// Assemble writes a title page followed by one page per image. Images
// that cannot be decoded or embedded are skipped. The PDF appears at
// outputPath only once it is complete.
func (a *Assembler) Assemble(images []DiscoveredImage, outputPath string) (*AssembleResult, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(reportCreator, true)
	pdf.SetTitle(reportTitle, true)
	pdf.SetCreationDate(a.now())
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	w, h := pdf.GetPageSize()
	page := Box{W: w, H: h}

	a.titlePage(pdf, tr)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build title page: %w", err)
	}

	result := &AssembleResult{Path: outputPath}
	for i, img := range images {
		if err := a.imagePage(pdf, tr, page, img, i+1); err != nil {
			pdf.ClearError()
			fmt.Fprintf(os.Stderr, "Error adding image to PDF: %s: %v\n", img.Path, err)
			a.logger.ReportSkip(img.Path, err)
			result.Skipped = append(result.Skipped, SkippedImage{Image: img, Err: err})
			continue
		}
		result.Images++
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	result.Pages = pdf.PageCount()

	if err := AtomicWriteFunc(outputPath, func(w io.Writer) error {
		return pdf.Output(w)
	}); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	a.logger.ReportWritten(outputPath, result.Pages, len(result.Skipped))
	return result, nil
}

func (a *Assembler) titlePage(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.AddPage()

	pdf.SetFont(reportFont, "B", titleFontSize)
	pdf.Text(pageMargin, pageMargin, tr(reportTitle))

	pdf.SetFont(reportFont, "", bodyFontSize)
	pdf.Text(pageMargin, pageMargin+30, tr("Generated: "+a.now().Format(displayTimeFormat)))
	pdf.Text(pageMargin, pageMargin+70, tr(reportDescriptor))

	pdf.SetFont(reportFont, "B", headFontSize)
	pdf.Text(pageMargin, pageMargin+110, tr("Test Environment"))

	pdf.SetFont(reportFont, "", bodyFontSize)
	y := pageMargin + 140
	for _, line := range a.environmentLines() {
		pdf.Text(pageMargin, y, tr(line))
		y += 20
	}
}

// imagePage registers the image before adding its page so a bad image
// never leaves an empty page behind
func (a *Assembler) imagePage(pdf *fpdf.Fpdf, tr func(string) string, page Box, img DiscoveredImage, n int) error {
	data, err := img.ReadAll()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return fmt.Errorf("image has no pixels")
	}

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	if format != "jpeg" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return fmt.Errorf("re-encode: %w", err)
		}
		data = buf.Bytes()
		opts.ImageType = "PNG"
	}

	name := fmt.Sprintf("image-%d", n)
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	pdf.AddPage()
	pdf.SetFont(reportFont, "B", headFontSize)
	pdf.Text(pageMargin, pageMargin, tr(fmt.Sprintf("Screenshot %d: %s", n, img.Name())))

	p := placeImage(Box{W: float64(bounds.Dx()), H: float64(bounds.Dy())}, page)
	pdf.ImageOptions(name, p.X, p.Y, p.W, p.H, false, opts, 0, "")
	return pdf.Error()
}
