package dataset

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// Channels is the number of colour channels in every Image.
const Channels = 3

// Image is a decoded, resized picture. Pix is row-major with interleaved
// channels in OpenCV's BGR order, Height rows of Width pixels.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// Shape returns (width, height, channels).
func (im Image) Shape() [3]int {
	return [3]int{im.Width, im.Height, Channels}
}

// At returns the value of channel c at column x, row y.
func (im Image) At(x, y, c int) uint8 {
	return im.Pix[(y*im.Width+x)*Channels+c]
}

// DecodeFile reads the image at path as 8-bit colour and resizes it to
// width x height.
func DecodeFile(path string, width, height int) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, &LoadError{Path: path, Kind: ErrFilesystem, Err: err}
	}
	f.Close()

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return Image{}, &LoadError{Path: path, Kind: ErrDecode, Err: fmt.Errorf("not a readable raster image")}
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	if resized.Cols() != width || resized.Rows() != height || resized.Channels() != Channels {
		return Image{}, &LoadError{Path: path, Kind: ErrDecode,
			Err: fmt.Errorf("resized to %dx%dx%d, want %dx%dx%d",
				resized.Cols(), resized.Rows(), resized.Channels(), width, height, Channels)}
	}

	pix := resized.ToBytes()
	if len(pix) != width*height*Channels {
		return Image{}, &LoadError{Path: path, Kind: ErrDecode,
			Err: fmt.Errorf("got %d bytes, want %d", len(pix), width*height*Channels)}
	}
	return Image{Width: width, Height: height, Pix: pix}, nil
}
