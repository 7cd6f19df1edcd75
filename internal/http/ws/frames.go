package ws

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/review-orchestrator/internal/domain"
)

// Commands accepted on the channel.
const (
	CmdStart         = "start"
	CmdReReviewStart = "reReviewStart"
	CmdCancel        = "cancel"
	CmdHistoryList   = "historyList"
	CmdHistoryDelete = "historyDelete"
	CmdChain         = "chain"
	CmdQueue         = "queue"

	// cmdUnknown is the throttle command name for frames that did not parse.
	cmdUnknown = "unknown"
)

// Frame is one client command.
type Frame struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers exactly one Frame, matched by ID.
type Reply struct {
	Type  string      `json:"type"`
	ID    string      `json:"id"`
	OK    bool        `json:"ok"`
	Data  any         `json:"data,omitempty"`
	Error *ReplyError `json:"error,omitempty"`
}

// ReplyError carries a stable code, plus per-field problems or denial
// details when relevant.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// EntityRef names an issue or PR.
type EntityRef struct {
	Repo   string `json:"repo"   validate:"required,repo"`
	Kind   string `json:"kind"   validate:"required"`
	Number int    `json:"number" validate:"required,gt=0"`
}

// Key converts the reference into a normalized entity key.
func (r EntityRef) Key() (domain.EntityKey, error) {
	kind, err := domain.ParseEntityKind(r.Kind)
	if err != nil {
		return domain.EntityKey{}, err
	}
	return domain.NewEntityKey(r.Repo, kind, r.Number)
}

// StartPayload is the payload of start.
type StartPayload struct {
	EntityRef
	RepoPath string `json:"repo_path" validate:"omitempty,max=4096"`
	Profile  string `json:"profile"   validate:"omitempty,max=64"`
	HeadSHA  string `json:"head_sha"  validate:"omitempty,hexadecimal,min=7,max=64"`
}

// ReReviewPayload is the payload of reReviewStart.
type ReReviewPayload struct {
	StartPayload
	PreviousEntryID string `json:"previous_entry_id" validate:"required,uuid"`
}

// HistoryListPayload is the payload of historyList.
type HistoryListPayload struct {
	Repo   string `json:"repo"   validate:"required,repo"`
	Entity int    `json:"entity" validate:"omitempty,gt=0"`
	Kind   string `json:"kind"   validate:"omitempty,oneof=issue pr"`
	Limit  int    `json:"limit"  validate:"omitempty,min=1,max=500"`
}

// HistoryDeletePayload is the payload of historyDelete.
type HistoryDeletePayload struct {
	ID string `json:"id" validate:"required,uuid"`
}

// DeleteResult is the data of a historyDelete reply.
type DeleteResult struct {
	Deleted bool `json:"deleted"`
}

// CancelResult is the data of a cancel reply.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("repo", validateRepo)
}

// validateRepo accepts "owner/name" with both halves non-empty.
func validateRepo(fl validator.FieldLevel) bool {
	owner, name, found := strings.Cut(strings.Trim(strings.TrimSpace(fl.Field().String()), "/"), "/")
	return found && owner != "" && name != "" && !strings.Contains(name, "/")
}

// errBadPayload marks decoding and validation failures.
var errBadPayload = errors.New("invalid payload")

// decode unmarshals raw into v and validates it. Validation failures come
// back as FieldErrors.
func decode(raw json.RawMessage, v any) ([]FieldError, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, errBadPayload
	}
	err := validate.Struct(v)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out, errBadPayload
}
