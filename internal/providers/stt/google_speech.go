package stt

import (
	"context"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/yoockh/yoscribe/internal/models"
	"google.golang.org/grpc/status"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

// NewGoogleSpeech uses header-detected encoding (WAV/FLAC) unless the caller
// overrides Encoding and SampleRateHz.
func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:        c,
		Encoding: speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, req Request) (*Result, error) {
	const op = "GoogleSpeech.Transcribe"

	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, failure(op, "failed to read audio file", err)
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   g.Encoding,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               googleLanguage(req.Language),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      req.Format == models.FormatSubtitle,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		msg := err.Error()
		if st, ok := status.FromError(err); ok && st.Message() != "" {
			msg = st.Message()
		}
		return nil, failure(op, msg, err)
	}

	if req.Format == models.FormatSubtitle {
		return &Result{Format: req.Format, Content: FormatSRT(cuesFromResults(resp.Results))}, nil
	}

	parts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if alt := bestAlternative(r); alt != nil && alt.Transcript != "" {
			parts = append(parts, strings.TrimSpace(alt.Transcript))
		}
	}
	return &Result{Format: req.Format, Content: strings.Join(parts, " ")}, nil
}

func bestAlternative(r *speechpb.SpeechRecognitionResult) *speechpb.SpeechRecognitionAlternative {
	var best *speechpb.SpeechRecognitionAlternative
	for _, alt := range r.Alternatives {
		if best == nil || alt.Confidence > best.Confidence {
			best = alt
		}
	}
	return best
}

// cuesFromResults turns each recognition result into one cue spanning its
// first and last word. Results without word timing continue from the
// previous cue's end.
func cuesFromResults(results []*speechpb.SpeechRecognitionResult) []Cue {
	cues := make([]Cue, 0, len(results))
	var prevEnd time.Duration
	for _, r := range results {
		alt := bestAlternative(r)
		if alt == nil || strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		c := Cue{Start: prevEnd, End: prevEnd, Text: alt.Transcript}
		if n := len(alt.Words); n > 0 {
			c.Start = alt.Words[0].GetStartTime().AsDuration()
			c.End = alt.Words[n-1].GetEndTime().AsDuration()
		}
		if re := r.GetResultEndTime(); re != nil && re.AsDuration() > c.End {
			c.End = re.AsDuration()
		}
		prevEnd = c.End
		cues = append(cues, c)
	}
	return cues
}

func googleLanguage(v string) string {
	switch strings.TrimSpace(v) {
	case "zh", "zh-TW":
		return "cmn-Hant-TW"
	case "zh-CN":
		return "cmn-Hans-CN"
	case "id", "id-ID":
		return "id-ID"
	case "", "en", "en-US":
		return "en-US"
	default:
		return v
	}
}

var _ Provider = (*GoogleSpeech)(nil)
