// SPDX-License-Identifier: Apache-2.0

// Package anonymize replaces configured column values with synthetic
// data, in place, via one UPDATE-FROM-VALUES statement per row keyed by
// primary key, reading the rows in chunks through a server-side cursor.
package anonymize

import (
	"fmt"

	"github.com/go-faker/faker/v4"

	"github.com/Tracktor/padmy/pkg/sampling"
)

// FieldGenerator produces one synthetic value for a configured
// anonymization field. The set of field kinds is closed: EMAIL is the
// only one implemented today, matching the original config's
// FieldType = Literal["EMAIL"].
type FieldGenerator interface {
	Generate(extraArgs map[string]string) (any, error)
}

type emailField struct{}

func (emailField) Generate(extraArgs map[string]string) (any, error) {
	if domain, ok := extraArgs["domain"]; ok && domain != "" {
		return fmt.Sprintf("%s@%s", faker.Username(), domain), nil
	}
	return faker.Email(), nil
}

// fieldGenerators maps the config's field type name to its generator.
var fieldGenerators = map[string]FieldGenerator{
	"EMAIL": emailField{},
}

// resolveFieldGenerator looks up the generator for an AnoField's type,
// failing closed on any type not in fieldGenerators.
func resolveFieldGenerator(field sampling.AnoField) (FieldGenerator, error) {
	gen, ok := fieldGenerators[field.Type]
	if !ok {
		return nil, fmt.Errorf("anonymize: unsupported field type %q for column %q", field.Type, field.Column)
	}
	return gen, nil
}
