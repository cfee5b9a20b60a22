package opencv

import (
	"fmt"
	"image"
	"log"

	"github.com/camden-git/faceattendance/media"
	"gocv.io/x/gocv"
)

// RetinaFaceDetector runs the RetinaFace ONNX model. A single instance is not
// safe for concurrent use; wrap several in a DetectorPool.
type RetinaFaceDetector struct {
	Net gocv.Net

	InputSizeW    int
	InputSizeH    int
	MeanVal       gocv.Scalar
	ConfThreshold float32
	IoUThreshold  float32

	priors    []media.PriorBox
	variances [2]float32
}

var _ media.Detector = (*RetinaFaceDetector)(nil)

// NewRetinaFaceDetector loads the RetinaFace model from modelPath.
func NewRetinaFaceDetector(modelPath string, confThreshold float32) (*RetinaFaceDetector, error) {
	net, err := loadNet("detection(retinaface)", modelPath, "")
	if err != nil {
		return nil, err
	}

	return &RetinaFaceDetector{
		Net:           net,
		InputSizeW:    640,
		InputSizeH:    640,
		MeanVal:       gocv.NewScalar(104.0, 117.0, 123.0, 0),
		ConfThreshold: confThreshold,
		IoUThreshold:  0.4,
		priors:        media.GenerateRetinaFacePriors(640, 640),
		variances:     [2]float32{0.1, 0.2},
	}, nil
}

func (r *RetinaFaceDetector) Close() error {
	log.Println("detection(retinaface): closed network")
	return r.Net.Close()
}

// DetectFaces runs RetinaFace on an RGB image. Boxes are in image pixels.
func (r *RetinaFaceDetector) DetectFaces(img image.Image) ([]media.DetectionResult, error) {
	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	imgWidth := float32(mat.Cols())
	imgHeight := float32(mat.Rows())

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(r.InputSizeW, r.InputSizeH), r.MeanVal, false, false)
	defer blob.Close()

	r.Net.SetInput(blob, "input")
	outputs := r.Net.ForwardLayers([]string{"bbox", "confidence", "landmark"})
	defer func() {
		for _, m := range outputs {
			m.Close()
		}
	}()
	if len(outputs) < 3 {
		return nil, fmt.Errorf("retinaface: expected 3 outputs (boxes, scores, landmarks), got %d", len(outputs))
	}

	return r.parseOutput(outputs[0], outputs[1], outputs[2], imgWidth, imgHeight)
}

func (r *RetinaFaceDetector) parseOutput(boxes, scores, landmarks gocv.Mat, imgWidth, imgHeight float32) ([]media.DetectionResult, error) {
	sizes := boxes.Size()
	if len(sizes) < 2 {
		return nil, fmt.Errorf("retinaface: unexpected box tensor shape %v", sizes)
	}
	numDetections := sizes[1]
	if numDetections != len(r.priors) {
		return nil, fmt.Errorf("retinaface: prior count %d does not match %d predictions", len(r.priors), numDetections)
	}

	var detections []media.DetectionResult
	for i := 0; i < numDetections; i++ {
		score := scores.GetFloatAt(0, i*2+1)
		if score < r.ConfThreshold {
			continue
		}

		var raw [4]float32
		for j := 0; j < 4; j++ {
			raw[j] = boxes.GetFloatAt(0, i*4+j)
		}
		decoded := media.DecodeBox(raw, r.priors[i], r.variances)
		x1 := max(0, decoded[0]*imgWidth)
		y1 := max(0, decoded[1]*imgHeight)
		x2 := min(imgWidth, decoded[2]*imgWidth)
		y2 := min(imgHeight, decoded[3]*imgHeight)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		pts := make([]media.Point2D, 0, 5)
		for j := 0; j < 5; j++ {
			pts = append(pts, media.Point2D{
				X: landmarks.GetFloatAt(0, i*10+j*2) * imgWidth,
				Y: landmarks.GetFloatAt(0, i*10+j*2+1) * imgHeight,
			})
		}

		detections = append(detections, media.DetectionResult{
			Box:        media.BoundingBox{X: int(x1), Y: int(y1), W: int(x2 - x1), H: int(y2 - y1)},
			Confidence: score,
			Landmarks:  pts,
		})
	}

	return media.NonMaxSuppression(detections, r.IoUThreshold), nil
}
