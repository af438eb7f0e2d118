package shapeinfer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Layout selects which axes of a 4D image tensor are batch, channels, height and width.
// The zero value is NCHW.
type Layout int

const (
	// NCHW is the "channels first" layout: [batch, channels, height, width].
	NCHW Layout = iota
	// NHWC is the "channels last" layout: [batch, height, width, channels].
	NHWC
)

// ParseLayout converts "NCHW" or "NHWC" (case-insensitive) to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToUpper(name) {
	case "NCHW":
		return NCHW, nil
	case "NHWC":
		return NHWC, nil
	}
	return NCHW, errors.Errorf("unsupported layout %q, only NCHW and NHWC are supported", name)
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case NCHW:
		return "NCHW"
	case NHWC:
		return "NHWC"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

func (l Layout) valid() bool { return l == NCHW || l == NHWC }

// ChannelsAxis returns the axis of the channels.
func (l Layout) ChannelsAxis() int {
	if l == NHWC {
		return 3
	}
	return 1
}

// SpatialAxes returns the height and width axes.
func (l Layout) SpatialAxes() [2]int {
	if l == NHWC {
		return [2]int{1, 2}
	}
	return [2]int{2, 3}
}
