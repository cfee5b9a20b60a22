package opencv

import (
	"image"
	"log"

	"github.com/camden-git/faceattendance/media"
	"gocv.io/x/gocv"
)

// SSDFaceDetector runs the res10 SSD Caffe face model. It is lighter than
// RetinaFace and is used when no RetinaFace model is configured.
type SSDFaceDetector struct {
	Net gocv.Net

	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32
}

var _ media.Detector = (*SSDFaceDetector)(nil)

// NewSSDFaceDetector loads the network from a prototxt config and caffemodel.
func NewSSDFaceDetector(configPath, modelPath string, confThreshold float32) (*SSDFaceDetector, error) {
	net, err := loadNet("detection(dnn)", modelPath, configPath)
	if err != nil {
		return nil, err
	}

	return &SSDFaceDetector{
		Net:           net,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: confThreshold,
	}, nil
}

func (d *SSDFaceDetector) Close() error {
	log.Println("detection(dnn): closed network")
	return d.Net.Close()
}

// DetectFaces runs face detection using the loaded DNN model
func (d *SSDFaceDetector) DetectFaces(img image.Image) ([]media.DetectionResult, error) {
	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	imgWidth := float32(mat.Cols())
	imgHeight := float32(mat.Rows())

	blob := gocv.BlobFromImage(mat, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) != 4 {
		log.Printf("detection(dnn): unexpected output matrix dimensions: %v", sizes)
		return nil, nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil, nil
	}

	// reshape to [N, 7] for GetFloatAt(row, col)
	detectionsData := detectionsMat.Reshape(1, numDetections)
	defer detectionsData.Close()

	var results []media.DetectionResult
	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)
		if confidence < d.ConfThreshold {
			continue
		}

		xMin := max(0, detectionsData.GetFloatAt(i, 3)*imgWidth)
		yMin := max(0, detectionsData.GetFloatAt(i, 4)*imgHeight)
		xMax := min(imgWidth, detectionsData.GetFloatAt(i, 5)*imgWidth)
		yMax := min(imgHeight, detectionsData.GetFloatAt(i, 6)*imgHeight)
		if xMax <= xMin || yMax <= yMin {
			continue
		}

		results = append(results, media.DetectionResult{
			Box:        media.BoundingBox{X: int(xMin), Y: int(yMin), W: int(xMax - xMin), H: int(yMax - yMin)},
			Confidence: confidence,
		})
	}

	return results, nil
}
