// Package plugins hosts extension subpackages. Each subpackage implements
// core.Extension and reaches storage only through the internal/blob facade
// and the repositories handed to it by the registry, never through the
// concrete backends under internal/infra.
package plugins
