package opencv

import (
	"fmt"
	"image"
	"io"
	"log"
	"strconv"

	"gocv.io/x/gocv"
)

// Camera reads frames from a webcam, RTSP stream or video file.
type Camera struct {
	source string
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	file   bool
}

// OpenCamera opens source. A purely numeric source is a local device index;
// anything else is passed to OpenCV as a file path or stream URL.
func OpenCamera(source string) (*Camera, error) {
	var device interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %q: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %q did not open", source)
	}

	// live devices and streams report no frame count
	file := vc.Get(gocv.VideoCaptureFrameCount) > 0
	log.Printf("camera: opened %q (file=%v)", source, file)

	return &Camera{source: source, vc: vc, frame: gocv.NewMat(), file: file}, nil
}

// Read returns the next frame as an RGB image. It returns io.EOF once a video
// file is exhausted; any other error is transient.
func (c *Camera) Read() (image.Image, error) {
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		if c.file && c.vc.Get(gocv.VideoCapturePosFrames) >= c.vc.Get(gocv.VideoCaptureFrameCount) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("camera %q: failed to read frame", c.source)
	}
	return fromMat(c.frame)
}

func (c *Camera) Close() error {
	c.frame.Close()
	log.Printf("camera: closed %q", c.source)
	return c.vc.Close()
}
