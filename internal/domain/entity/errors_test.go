package entity

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ExpandError{Kind: ErrNotFound, Path: "a.png", Index: -1, Err: os.ErrNotExist})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrWriteFailure))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, "wrapped: source not found: a.png: file does not exist", err.Error())
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&ExpandError{Kind: ErrNotFound}))
	assert.True(t, IsPermanent(&ExpandError{Kind: ErrInvalidArgument}))
	assert.False(t, IsPermanent(&ExpandError{Kind: ErrWriteFailure}))
	assert.False(t, IsPermanent(errors.New("network")))
}

func TestExpandErrorMessageWithoutPath(t *testing.T) {
	err := &ExpandError{Kind: ErrInvalidArgument, Index: -1, Err: errors.New("fps must be positive, got 0")}
	assert.Equal(t, "invalid argument: fps must be positive, got 0", err.Error())
}
