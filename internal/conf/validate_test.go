package conf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/pipeline"
	"github.com/tobilg/citystream/internal/schema"
	"github.com/tobilg/citystream/internal/sink"
)

type fakeSink struct{}

func (fakeSink) Info() sink.Info { return sink.Info{Name: "fake"} }

func (fakeSink) Parameters() []sink.ParamDef {
	return []sink.ParamDef{
		{Name: "path", Kind: sink.ParamFileSystemPath, Required: true},
		{Name: "max-zoom", Kind: sink.ParamInteger},
		{Name: "mode", Kind: sink.ParamEnum, Enum: []string{"a", "b"}},
	}
}

func (fakeSink) Requirements() sink.Requirements { return sink.Requirements{} }

func (fakeSink) Run(ctx context.Context, in <-chan pipeline.Parcel, feedback chan<- pipeline.FeedbackMessage, sch *schema.Schema) error {
	return nil
}

func TestValidateParamsRejectsMissingRequired(t *testing.T) {
	err := ValidateParams(fakeSink{}, map[string]string{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "path")
}

func TestValidateParamsRejectsUnknownParam(t *testing.T) {
	err := ValidateParams(fakeSink{}, map[string]string{"path": "/tmp/x", "bogus": "1"})
	require.Error(t, err)
}

func TestValidateParamsRejectsBadInteger(t *testing.T) {
	err := ValidateParams(fakeSink{}, map[string]string{"path": "/tmp/x", "max-zoom": "not-a-number"})
	require.Error(t, err)
}

func TestValidateParamsRejectsBadEnum(t *testing.T) {
	err := ValidateParams(fakeSink{}, map[string]string{"path": "/tmp/x", "mode": "z"})
	require.Error(t, err)
}

func TestValidateParamsAcceptsValidParams(t *testing.T) {
	err := ValidateParams(fakeSink{}, map[string]string{"path": "/tmp/x", "max-zoom": "12", "mode": "a"})
	require.NoError(t, err)
}
