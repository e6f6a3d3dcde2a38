package imageutil

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

type Image struct {
	Data   []byte
	Width  int
	Height int
}

// FitWidth downscales a PNG so that it is at most maxWidth pixels wide,
// keeping the aspect ratio. maxWidth <= 0 leaves the image untouched.
func FitWidth(data []byte, maxWidth int) (*Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return &Image{Data: data, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("png encode failed: %w", err)
	}

	return &Image{
		Data:   buf.Bytes(),
		Width:  resized.Bounds().Dx(),
		Height: resized.Bounds().Dy(),
	}, nil
}
