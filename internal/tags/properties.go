package tags

import (
	"time"

	"go.senan.xyz/taglib"
)

// Properties are audio stream properties.
type Properties struct {
	Duration   time.Duration
	Bitrate    uint // kbit/s
	SampleRate uint
	Channels   uint
}

// ReadProperties reads stream properties through TagLib.
func ReadProperties(path string) (*Properties, error) {
	props, err := taglib.ReadProperties(path)
	if err != nil {
		return nil, err
	}
	return &Properties{
		Duration:   props.Length,
		Bitrate:    props.Bitrate,
		SampleRate: props.SampleRate,
		Channels:   props.Channels,
	}, nil
}
