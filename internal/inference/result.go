package inference

import "strings"

// SenseVoice emits rich transcription text of the form
// <|lang|><|emotion|><|event|>text. The tag vocabulary is fixed by the
// model's tokenizer.

var knownLanguages = map[string]bool{
	"zh": true, "en": true, "yue": true, "ja": true, "ko": true, "nospeech": true,
}

var knownEmotions = map[string]bool{
	"NEUTRAL": true, "SAD": true, "HAPPY": true, "ANGRY": true,
	"FEAR": true, "SURPRISE": true,
}

var knownEvents = map[string]bool{
	"BGM": true, "Speech": true, "Applause": true, "Laughter": true,
	"Cry": true, "Sneeze": true, "Breath": true, "Cough": true,
}

// ParseTagged splits a rich transcription string into its tag metadata and
// plain text. Unknown or absent tags leave the corresponding field empty;
// the text is whatever remains after the recognized tag prefix.
func ParseTagged(raw string) (language, emotion, event, text string) {
	text = raw
	for strings.HasPrefix(text, "<|") {
		end := strings.Index(text, "|>")
		if end < 0 {
			break
		}
		tag := text[2:end]
		switch {
		case knownLanguages[tag]:
			language = tag
		case knownEmotions[tag]:
			emotion = tag
		case knownEvents[tag]:
			event = tag
		}
		// Skip unrecognized tags (e.g. <|withitn|>) without surfacing them.
		text = text[end+2:]
	}
	return language, emotion, event, strings.TrimSpace(text)
}

// ApplyTags populates the result's metadata fields from its tagged text,
// honoring the per-request detection toggles, and strips tags from the
// transcript.
func (r *Result) ApplyTags(detectLanguage, detectEmotion bool) {
	language, emotion, event, text := ParseTagged(r.Text)
	r.Text = text
	if detectLanguage && r.Language == "" {
		r.Language = language
	}
	if detectEmotion && r.Emotion == "" {
		r.Emotion = emotion
	}
	if r.Event == "" {
		r.Event = event
	}
	for i := range r.Segments {
		_, _, _, segText := ParseTagged(r.Segments[i].Text)
		r.Segments[i].Text = segText
	}
}

// Transcript joins segment texts into the full transcript, falling back to
// the top-level text when the engine produced no segments.
func (r *Result) Transcript() string {
	if len(r.Segments) == 0 {
		return r.Text
	}
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	if len(parts) == 0 {
		return r.Text
	}
	return strings.Join(parts, " ")
}
