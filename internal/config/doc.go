// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It reads the same
// openlineage.yml and AIRFLOW__OPENLINEAGE__TRANSPORT settings that the
// Airflow OpenLineage provider uses, so one configuration serves both.
package config
