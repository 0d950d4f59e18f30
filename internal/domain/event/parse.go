package event

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

//nolint:gochecknoglobals
var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

type installationPayload struct {
	Action       string        `json:"action" validate:"required"`
	Installation *Installation `json:"installation"`
	Repositories []Repository  `json:"repositories"`
}

type installationRepositoriesPayload struct {
	Action              string        `json:"action" validate:"required"`
	Installation        *Installation `json:"installation"`
	RepositoriesAdded   []Repository  `json:"repositories_added"`
	RepositoriesRemoved []Repository  `json:"repositories_removed"`
}

// Parse decodes a delivery body into its typed variant. Unknown event names and actions
// yield Ignored; known actions with missing required fields fail with ValidationError.
func Parse(name string, body []byte) (Event, error) {
	switch name {
	case NameInstallation:
		var p installationPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		switch p.Action {
		case ActionCreated, ActionDeleted:
			return newRepositoriesEvent(name, p.Action, p.Installation, p.Repositories)
		}
		return Ignored{EventName: name, Action: p.Action}, nil

	case NameInstallationRepositories:
		var p installationRepositoriesPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		switch p.Action {
		case ActionAdded:
			return newRepositoriesEvent(name, p.Action, p.Installation, p.RepositoriesAdded)
		case ActionRemoved:
			return newRepositoriesEvent(name, p.Action, p.Installation, p.RepositoriesRemoved)
		}
		return Ignored{EventName: name, Action: p.Action}, nil

	case NamePullRequest:
		var p PullRequestEvent
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		switch p.Action {
		case ActionOpened, ActionSynchronize, ActionClosed, ActionReopened:
		default:
			return Ignored{EventName: name, Action: p.Action}, nil
		}
		if err := validate.Struct(p); err != nil {
			return nil, domain.WrapError(err, errcodes.ValidationError, "malformed pull_request event")
		}
		p.Raw = body
		return p, nil
	}

	return Ignored{EventName: name}, nil
}

func newRepositoriesEvent(name, action string, inst *Installation, repos []Repository) (Event, error) {
	if inst == nil || inst.Id == 0 {
		return nil, domain.NewError(errcodes.ValidationError,
			fmt.Sprintf("%s.%s: installation id is required", name, action))
	}
	if len(repos) == 0 {
		return nil, domain.NewError(errcodes.ValidationError,
			fmt.Sprintf("%s.%s: repository list is empty", name, action))
	}
	for i, r := range repos {
		if err := validate.Struct(r); err != nil {
			return nil, domain.WrapError(err, errcodes.ValidationError,
				fmt.Sprintf("%s.%s: repository %d is malformed", name, action, i))
		}
	}
	return RepositoriesEvent{
		EventName:    name,
		Action:       action,
		Installation: *inst,
		Repositories: repos,
	}, nil
}

func decode(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.WrapError(err, errcodes.ValidationError, "invalid JSON payload")
	}
	return nil
}
