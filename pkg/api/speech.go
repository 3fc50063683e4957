package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speechlytics/speech-gateway/pkg/auth"
	"github.com/speechlytics/speech-gateway/pkg/domain/speech"
	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

type createSentenceRequest struct {
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Interrupted bool   `json:"interrupted"`
}

type createSpeechRequest struct {
	Name      string                  `json:"name"`
	Date      string                  `json:"date"`
	Speakers  []string                `json:"speakers"`
	Sentences []createSentenceRequest `json:"sentences"`
	Media     string                  `json:"media"`
}

type sentenceResponse struct {
	UID         string `json:"uid"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Interrupted bool   `json:"interrupted"`
}

// speechSummary is the list item shape: no sentences.
type speechSummary struct {
	UID      string   `json:"uid"`
	Name     string   `json:"name"`
	Date     string   `json:"date"`
	Speakers []string `json:"speakers"`
	Media    string   `json:"media"`
}

// speechDetail is the single-speech shape, sentences included.
type speechDetail struct {
	UID       string             `json:"uid"`
	Name      string             `json:"name"`
	Date      string             `json:"date"`
	Media     string             `json:"media"`
	Speakers  []string           `json:"speakers"`
	Sentences []sentenceResponse `json:"sentences"`
}

func formatSpeakers(speakers []uuid.UUID) []string {
	out := make([]string, 0, len(speakers))
	for _, s := range speakers {
		out = append(out, s.String())
	}
	return out
}

func toSpeechSummary(s speech.Speech) speechSummary {
	return speechSummary{
		UID:      s.UID.String(),
		Name:     s.Name,
		Date:     s.Date.Format(time.RFC3339),
		Speakers: formatSpeakers(s.Speakers),
		Media:    s.Media,
	}
}

func toSpeechDetail(s speech.Speech) speechDetail {
	sentences := make([]sentenceResponse, 0, len(s.Sentences))
	for _, sent := range s.Sentences {
		sentences = append(sentences, sentenceResponse{
			UID:         sent.UID.String(),
			Speaker:     sent.Speaker.String(),
			Text:        sent.Text,
			Interrupted: sent.Interrupted,
		})
	}
	return speechDetail{
		UID:       s.UID.String(),
		Name:      s.Name,
		Date:      s.Date.Format(time.RFC3339),
		Media:     s.Media,
		Speakers:  formatSpeakers(s.Speakers),
		Sentences: sentences,
	}
}

// speechRoutes handles the /api/speech sub-paths.
type speechRoutes struct {
	manager *speech.Manager
	logger  *slog.Logger
}

func (sr *speechRoutes) handle(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	switch {
	case req.Method == http.MethodPost && req.Path == "":
		return sr.create(ctx, req)
	case req.Method == http.MethodGet && req.Path == "":
		return sr.list(ctx, req)
	case req.Method == http.MethodGet && strings.HasSuffix(req.Path, "/media"):
		return sr.mediaURL(ctx, req)
	case req.Method == http.MethodGet:
		return sr.get(ctx, req)
	case req.Method == http.MethodDelete:
		return sr.delete(ctx, req)
	default:
		return nil, &ErrNotFound
	}
}

func (sr *speechRoutes) create(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionCreateSpeech); httpErr != nil {
		return nil, httpErr
	}

	var input createSpeechRequest
	if err := json.Unmarshal(req.Body, &input); err != nil ||
		input.Name == "" || input.Date == "" || input.Media == "" {
		return nil, &ErrInvalidFormat
	}

	date, err := time.Parse(time.RFC3339, input.Date)
	if err != nil {
		httpErr := NewHTTPError(400, "InvalidDate",
			"The date provided is invalid. Please be sure to provide an ISO 8601 date.")
		return nil, &httpErr
	}

	speakers := make([]uuid.UUID, 0, len(input.Speakers))
	for _, raw := range input.Speakers {
		speaker, err := uuid.Parse(raw)
		if err != nil {
			httpErr := NewHTTPError(400, "InvalidSpeakersUid",
				"One of the speaker uid provided have an invalid format")
			return nil, &httpErr
		}
		speakers = append(speakers, speaker)
	}

	sentences := make([]speech.SentenceInput, 0, len(input.Sentences))
	for _, sent := range input.Sentences {
		speaker, err := uuid.Parse(sent.Speaker)
		if err != nil {
			httpErr := NewHTTPError(400, "InvalidUID", "A speaker uid have an invalid format")
			return nil, &httpErr
		}
		sentences = append(sentences, speech.SentenceInput{
			Speaker:     speaker,
			Text:        sent.Text,
			Interrupted: sent.Interrupted,
		})
	}

	if _, err := sr.manager.Create(ctx, speech.CreateInput{
		Name:      input.Name,
		Date:      date,
		Speakers:  speakers,
		Sentences: sentences,
		Media:     input.Media,
	}); err != nil {
		return nil, sr.mapError(ctx, err)
	}
	return nil, nil
}

func (sr *speechRoutes) list(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionGetSpeech); httpErr != nil {
		return nil, httpErr
	}

	page, quantity, httpErr := parsePagination(req.Query)
	if httpErr != nil {
		return nil, httpErr
	}

	speakersRaw, httpErr := extractArrayParam("speakers", req.Query)
	if httpErr != nil {
		return nil, httpErr
	}
	speakers := make([]uuid.UUID, 0, len(speakersRaw))
	for _, raw := range speakersRaw {
		speaker, err := uuid.Parse(raw)
		if err != nil {
			e := NewHTTPError(400, "InvalidUid", "The uid provided seems invalid, please check it again")
			return nil, &e
		}
		speakers = append(speakers, speaker)
	}

	speeches, err := sr.manager.List(ctx, speakers, page, quantity)
	if err != nil {
		return nil, sr.mapError(ctx, err)
	}

	out := make([]speechSummary, 0, len(speeches))
	for _, s := range speeches {
		out = append(out, toSpeechSummary(s))
	}
	return out, nil
}

func (sr *speechRoutes) get(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionGetSpeech); httpErr != nil {
		return nil, httpErr
	}

	uid, httpErr := parseSpeechUID(req.Path)
	if httpErr != nil {
		return nil, httpErr
	}

	s, err := sr.manager.Get(ctx, uid)
	if err != nil {
		return nil, sr.mapError(ctx, err)
	}
	return toSpeechDetail(s), nil
}

func (sr *speechRoutes) delete(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionDeleteSpeech); httpErr != nil {
		return nil, httpErr
	}

	uid, httpErr := parseSpeechUID(req.Path)
	if httpErr != nil {
		return nil, httpErr
	}

	if err := sr.manager.Delete(ctx, uid); err != nil {
		return nil, sr.mapError(ctx, err)
	}
	return nil, nil
}

// mediaURL resolves a time-limited download link for the speech's
// recording.
func (sr *speechRoutes) mediaURL(ctx context.Context, req *RouteRequest) (any, *HTTPError) {
	if httpErr := requirePermission(req.Principal, auth.PermissionGetSpeech); httpErr != nil {
		return nil, httpErr
	}

	uid, httpErr := parseSpeechUID(strings.TrimSuffix(req.Path, "/media"))
	if httpErr != nil {
		return nil, httpErr
	}

	url, err := sr.manager.MediaURL(ctx, uid)
	if err != nil {
		if gwerr.IsUnavailable(err) {
			e := NewHTTPError(503, "MediaUnavailable", "The media storage is currently unavailable")
			return nil, &e
		}
		return nil, sr.mapError(ctx, err)
	}
	return map[string]string{"url": url}, nil
}

func parseSpeechUID(raw string) (uuid.UUID, *HTTPError) {
	uid, err := uuid.Parse(raw)
	if err != nil {
		httpErr := NewHTTPError(400, "InvalidUid", "The uid provided seems invalid, please check it again")
		return uuid.Nil, &httpErr
	}
	return uid, nil
}

// extractArrayParam reads a query parameter shaped as an URL-encoded
// bracketed list, e.g. speakers=%5Buid1,uid2%5D. A missing parameter
// yields an empty list; a value without brackets is an error.
func extractArrayParam(name string, query map[string]string) ([]string, *HTTPError) {
	raw, ok := query[name]
	if !ok {
		return nil, nil
	}

	start := strings.Index(raw, "%5B")
	if start < 0 {
		e := NewHTTPError(400, "InvalidArrayParam", "The array query parameter given is an invalid format.")
		return nil, &e
	}
	inner := raw[start+len("%5B"):]
	if end := strings.Index(inner, "%5D"); end >= 0 {
		inner = inner[:end]
	}
	return strings.Split(inner, ","), nil
}

// mapError converts a domain failure into the speech error envelope.
// Internal detail is logged, never returned.
func (sr *speechRoutes) mapError(ctx context.Context, err error) *HTTPError {
	switch {
	case gwerr.IsNotFound(err):
		e := NewHTTPError(404, "SpeechNotFound", "The speech requested is not found")
		return &e
	case gwerr.IsConflict(err):
		e := NewHTTPError(409, "SpeechAlreadyExists", "The speech you try to create already exists.")
		return &e
	default:
		sr.logger.ErrorContext(ctx, "speech operation failed", "error", err)
		return &ErrInternal
	}
}
