// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upper writes the upper-cased input string to its output.
type upper struct {
	cor.BaseCommand
}

func newUpper(name string) *upper {
	return &upper{BaseCommand: *cor.NewBaseCommand(name)}
}

func (u *upper) Execute(context cor.Context) {
	in := context.Get(u.GetInputParam()).(string)
	u.Succeed(context, strings.ToUpper(in)+"!")
}

type failing struct {
	cor.BaseCommand
	err error
}

func (f *failing) Execute(context cor.Context) {
	f.Fail(context, f.err)
}

func TestChainPipesOutputToInput(t *testing.T) {
	chain := cor.NewBaseChain("pipeline")
	chain.AddCommand(newUpper("first")).AddCommand(newUpper("second"))

	chCtx := cor.NewContext(context.Background(), "touch")
	chain.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "TOUCH!!", chCtx.Get(cor.CtxIn))
	assert.Nil(t, chCtx.Get(cor.CtxOut))
	assert.Equal(t, []string{"first", "second"}, chain.Commands())
}

func TestChainStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	second := newUpper("second")

	chain := cor.NewBaseChain("pipeline")
	chain.AddCommand(&failing{BaseCommand: *cor.NewBaseCommand("first"), err: boom}).AddCommand(second)

	chCtx := cor.NewContext(context.Background(), "parry")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), boom)
	assert.Len(t, chCtx.GetErrors(), 1)
}

func TestChainContinuesOnFailure(t *testing.T) {
	boom := errors.New("boom")
	named := newUpper("named")
	named.InputParamName = "original"
	named.OutputParamName = "result"

	chain := cor.NewBaseChain("pipeline")
	chain.ContinueOnFailure(true)
	chain.AddCommand(&failing{BaseCommand: *cor.NewBaseCommand("first"), err: boom}).AddCommand(named)

	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add("original", "riposte")
	chain.Execute(chCtx)

	assert.ErrorIs(t, chCtx.Err(), boom)
	assert.Equal(t, "RIPOSTE!", chCtx.Get("result"))
}

func TestChainRecordsMissingInput(t *testing.T) {
	chain := cor.NewBaseChain("pipeline")
	chain.AddCommand(newUpper("first"))

	chCtx := cor.NewContext(context.Background(), nil)
	chain.Execute(chCtx)

	require.True(t, chCtx.HasErrors())
	assert.Contains(t, chCtx.GetErrors()["first"].Error(), "not executable")
}

func TestChainRestoresGoContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "bout")

	chain := cor.NewBaseChain("pipeline")
	chain.AddCommand(newUpper("first"))

	chCtx := cor.NewContext(ctx, "lunge")
	chain.Execute(chCtx)
	assert.Equal(t, ctx, chCtx.GetContext())
}

func TestContextErrJoinsInKeyOrder(t *testing.T) {
	chCtx := cor.NewBaseContext()
	assert.NoError(t, chCtx.Err())

	late := errors.New("parse failed")
	early := errors.New("decode failed")
	chCtx.AddError("convert", late)
	chCtx.AddError("archive", early)

	err := chCtx.Err()
	assert.ErrorIs(t, err, late)
	assert.ErrorIs(t, err, early)
	assert.Equal(t, "decode failed\nparse failed", err.Error())
}
