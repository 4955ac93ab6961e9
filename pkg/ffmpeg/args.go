package ffmpeg

import (
	"strconv"
	"time"

	"cam-station/pkg/urlutil"
)

// ReadyMarker is the stderr evidence that ffmpeg has opened its output and
// begun producing data.
const ReadyMarker = "Output #0"

// VoiceFilter applies noise-floor reduction and then keeps roughly the
// 200 Hz-3 kHz voice band, discarding low rumble and high hiss.
const VoiceFilter = "afftdn,highpass=f=200,lowpass=f=3000"

// RTSPInputOptions force TCP transport and bound the connection timeout so
// a dead camera fails fast instead of hanging on UDP.
func RTSPInputOptions(timeout time.Duration) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-timeout", strconv.FormatInt(timeout.Microseconds(), 10),
	}
}

// InputOptionsFor returns the tuning options for a source URL. Only RTSP
// sources need any today.
func InputOptionsFor(sourceURL string, rtspTimeout time.Duration) []string {
	if urlutil.IsRTSP(sourceURL) {
		return RTSPInputOptions(rtspTimeout)
	}
	return nil
}

// HLSOutputOptions produce a segmented, live-friendly output: short
// segments, a bounded playlist, old segments deleted as playback advances.
func HLSOutputOptions(segmentPattern string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-an",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", segmentPattern,
	}
}

// RecordOutputOptions encode for broad player compatibility with the
// metadata moved to the file head for progressive download.
func RecordOutputOptions() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
}

// DualInputArgs builds the full argument list for a two-input recording:
// video from the camera stream, audio from its companion endpoint, muxed
// into one file with the voice-band filter chain applied.
func DualInputArgs(videoURL, audioURL, outPath string, rtspTimeout time.Duration) []string {
	var args []string
	args = append(args, InputOptionsFor(videoURL, rtspTimeout)...)
	args = append(args, "-i", videoURL)
	args = append(args, InputOptionsFor(audioURL, rtspTimeout)...)
	args = append(args, "-i", audioURL)
	args = append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-af", VoiceFilter,
		"-c:a", "aac",
		"-b:a", "128k",
	)
	args = append(args, RecordOutputOptions()...)
	args = append(args, "-y", outPath)
	return args
}
