package opencv

import (
	"fmt"
	"image"
	"log"

	"github.com/camden-git/faceattendance/media"
	"gocv.io/x/gocv"
)

// RecognitionModel runs an ArcFace or FaceNet network on an already-cropped
// face. It never performs detection. Not safe for concurrent use.
type RecognitionModel struct {
	Net       gocv.Net
	ModelName string

	InputSizeW int
	InputSizeH int
}

var _ media.EmbeddingModel = (*RecognitionModel)(nil)

// NewRecognitionModel loads a face recognition model (arcface, facenet).
func NewRecognitionModel(modelPath, modelName string) (*RecognitionModel, error) {
	net, err := loadNet("recognition", modelPath, "")
	if err != nil {
		return nil, err
	}

	m := &RecognitionModel{Net: net, ModelName: modelName}
	switch modelName {
	case "facenet":
		m.InputSizeW, m.InputSizeH = 160, 160
	default:
		m.InputSizeW, m.InputSizeH = 112, 112
	}
	log.Printf("recognition: loaded %s model (%dx%d input)", modelName, m.InputSizeW, m.InputSizeH)

	return m, nil
}

func (m *RecognitionModel) Name() string {
	return m.ModelName
}

func (m *RecognitionModel) Close() error {
	log.Printf("recognition: closed %s network", m.ModelName)
	return m.Net.Close()
}

// Embed returns the raw, unnormalised network output for face.
func (m *RecognitionModel) Embed(face image.Image) ([]float32, error) {
	mat, err := toMat(face)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	processed := m.preprocess(mat)
	defer processed.Close()

	blob := gocv.BlobFromImage(processed, 1.0/255.0, image.Pt(m.InputSizeW, m.InputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	m.Net.SetInput(blob, "")
	output := m.Net.Forward("")
	defer output.Close()

	if len(output.Size()) == 0 || output.Empty() {
		return nil, fmt.Errorf("recognition: %s produced an empty output", m.ModelName)
	}

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make([]float32, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return embedding, nil
}

// preprocess converts the BGR crop to an RGB float image of the network's input size.
func (m *RecognitionModel) preprocess(face gocv.Mat) gocv.Mat {
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(face, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(m.InputSizeW, m.InputSizeH), 0, 0, gocv.InterpolationLinear)

	out := gocv.NewMat()
	resized.ConvertTo(&out, gocv.MatTypeCV32F)
	return out
}
