// Package config defines the gateway configuration model and its YAML
// loading pipeline.
//
// Configuration is loaded in three phases: parse the YAML file, apply
// defaults for unset fields, then validate the result. Environment
// variables using the OAGW_SECTION_FIELD convention override file values
// and are applied between defaulting and validation.
package config
