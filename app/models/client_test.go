package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "pastor@stmarks.org", NormalizeEmail("Pastor@StMarks.ORG"))
	assert.Equal(t, "pastor@stmarks.org", NormalizeEmail("  pastor@stmarks.org  "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestClientValidate(t *testing.T) {
	valid := Client{Email: "pastor@stmarks.org", ChurchName: "St. Marks"}
	assert.NoError(t, valid.Validate())

	missingEmail := Client{ChurchName: "St. Marks"}
	assert.Error(t, missingEmail.Validate())

	badEmail := Client{Email: "not-an-email"}
	assert.Error(t, badEmail.Validate())
}
