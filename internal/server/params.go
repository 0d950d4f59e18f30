package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/value"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

func pathParam[T any](r *http.Request, name string) (T, error) {
	var dest T
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &dest,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		return dest, domain.WrapError(err, errcodes.ValidationError, "invalid path parameter "+name)
	}
	return dest, nil
}

func taskIdParam(r *http.Request) (string, error) {
	raw, err := pathParam[string](r, "taskId")
	if err != nil {
		return "", err
	}
	id, err := value.ParseTaskID(raw)
	if err != nil {
		return "", domain.WrapError(err, errcodes.ValidationError, "invalid task id")
	}
	return id.String(), nil
}

func mergeIdParam(r *http.Request) (int64, error) {
	id, err := pathParam[int64](r, "mergeId")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, domain.NewError(errcodes.ValidationError, "merge id must be positive")
	}
	return id, nil
}
