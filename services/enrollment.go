package services

import (
	"context"
	"fmt"
	"image"
	"log"
	"sort"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
)

const DefaultMinValidFaces = 10

// EnrollmentReport summarises a successful enrollment.
type EnrollmentReport struct {
	Owner            models.StudentIdentity `json:"owner"`
	Stored           int                    `json:"stored"`
	PhotosProvided   int                    `json:"photos_provided"`
	Rejected         []media.PhotoRejection `json:"rejected"`
	EncodingFailures int                    `json:"encoding_failures"`
}

// EnrollmentPipeline turns a batch of photos of one student into stored
// reference embeddings.
type EnrollmentPipeline struct {
	extractor     *media.FaceExtractor
	encoder       *media.EmbeddingEncoder
	store         repository.EmbeddingStore
	minValidFaces int
}

// NewEnrollmentPipeline creates a pipeline. minValidFaces <= 0 selects
// DefaultMinValidFaces.
func NewEnrollmentPipeline(extractor *media.FaceExtractor, encoder *media.EmbeddingEncoder, store repository.EmbeddingStore, minValidFaces int) *EnrollmentPipeline {
	if minValidFaces <= 0 {
		minValidFaces = DefaultMinValidFaces
	}
	return &EnrollmentPipeline{
		extractor:     extractor,
		encoder:       encoder,
		store:         store,
		minValidFaces: minValidFaces,
	}
}

func (p *EnrollmentPipeline) MinValidFaces() int {
	return p.minValidFaces
}

// Enroll extracts one face per photo, encodes the valid ones and replaces the
// owner's stored embeddings. Nothing is stored unless at least MinValidFaces
// photos survive both extraction and encoding.
func (p *EnrollmentPipeline) Enroll(ctx context.Context, owner models.StudentIdentity, photos []image.Image) (EnrollmentReport, error) {
	decoded := make([]media.DecodedPhoto, len(photos))
	for i, img := range photos {
		decoded[i] = media.DecodedPhoto{Index: i, Image: img}
	}
	return p.enroll(ctx, owner, decoded, nil, len(photos))
}

// EnrollUploads decodes raw uploaded files first. Undecodable files and
// byte-identical duplicates count as rejections.
func (p *EnrollmentPipeline) EnrollUploads(ctx context.Context, owner models.StudentIdentity, raw [][]byte) (EnrollmentReport, error) {
	photos, rejected := media.DecodePhotos(raw)
	return p.enroll(ctx, owner, photos, rejected, len(raw))
}

func (p *EnrollmentPipeline) enroll(ctx context.Context, owner models.StudentIdentity, photos []media.DecodedPhoto, rejected []media.PhotoRejection, provided int) (EnrollmentReport, error) {
	report := EnrollmentReport{Owner: owner, PhotosProvided: provided, Rejected: rejected}

	if provided == 0 {
		return report, &EnrollmentError{
			Owner:    owner,
			Reason:   "no photos provided",
			Required: p.minValidFaces,
			Err:      &media.ValidationError{Field: "photos", Reason: "no photos provided"},
		}
	}

	images := make([]image.Image, len(photos))
	for i, ph := range photos {
		images[i] = ph.Image
	}
	results := p.extractor.ExtractMany(ctx, images, media.ModeSingleFace)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("enrollment of %s cancelled: %w", owner, err)
	}

	type validCrop struct {
		index int
		crop  media.FaceCrop
	}
	var crops []validCrop
	for i, res := range results {
		if !res.Diagnostic.OK() || len(res.Faces) == 0 {
			report.Rejected = append(report.Rejected, media.PhotoRejection{Index: photos[i].Index, Diagnostic: res.Diagnostic})
			continue
		}
		crops = append(crops, validCrop{index: photos[i].Index, crop: res.Faces[0]})
	}
	sortRejections(report.Rejected)

	if len(crops) < p.minValidFaces {
		return report, p.shortfall(owner, len(crops), report.Rejected)
	}

	vectors := make([][]float32, 0, len(crops))
	for _, c := range crops {
		vec, err := p.encoder.Encode(c.crop)
		if err != nil {
			log.Printf("enrollment: %s photo %d: %v", owner, c.index+1, err)
			report.EncodingFailures++
			report.Rejected = append(report.Rejected, media.PhotoRejection{
				Index:      c.index,
				Diagnostic: media.Diagnostic{Reason: media.ReasonEncodingFailed, Detail: err.Error()},
			})
			continue
		}
		vectors = append(vectors, vec)
	}
	sortRejections(report.Rejected)

	if len(vectors) < p.minValidFaces {
		return report, p.shortfall(owner, len(vectors), report.Rejected)
	}

	if err := p.store.Save(ctx, owner, vectors); err != nil {
		return report, fmt.Errorf("failed to store embeddings for %s: %w", owner, err)
	}
	report.Stored = len(vectors)

	log.Printf("enrollment: stored %d embeddings for %s (%d photos, %d rejected)",
		report.Stored, owner, report.PhotosProvided, len(report.Rejected))
	return report, nil
}

func (p *EnrollmentPipeline) shortfall(owner models.StudentIdentity, valid int, rejected []media.PhotoRejection) error {
	e := &EnrollmentError{
		Owner:    owner,
		Reason:   fmt.Sprintf("only %d valid faces of %d required", valid, p.minValidFaces),
		Valid:    valid,
		Required: p.minValidFaces,
	}
	if len(rejected) > 0 {
		first := rejected[0]
		e.FirstRejection = &first
		e.Err = first.Diagnostic.Err()
	}
	return e
}

func sortRejections(r []media.PhotoRejection) {
	sort.SliceStable(r, func(i, j int) bool { return r[i].Index < r[j].Index })
}
