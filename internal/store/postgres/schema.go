package postgres

// schemaDDL creates the calibration tables.
// weight_vectors and benchmarks are never updated in place; observations,
// points and samples are keyed on their week so a repeated run replaces them.
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS dealerai;

CREATE TABLE IF NOT EXISTS dealerai.weight_vectors (
	id           UUID PRIMARY KEY,
	tenant       TEXT NOT NULL,
	version      INTEGER NOT NULL,
	weights      JSONB NOT NULL,
	intercept    DOUBLE PRECISION NOT NULL DEFAULT 0,
	fit          JSONB NOT NULL,
	source       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant, version)
);

CREATE TABLE IF NOT EXISTS dealerai.period_observations (
	id            BIGSERIAL PRIMARY KEY,
	tenant        TEXT NOT NULL,
	period        TIMESTAMPTZ NOT NULL,
	pillars       JSONB NOT NULL,
	composite     DOUBLE PRECISION NOT NULL,
	outcome       DOUBLE PRECISION NOT NULL,
	secondary     DOUBLE PRECISION NOT NULL,
	completeness  DOUBLE PRECISION NOT NULL,
	entity_count  INTEGER NOT NULL,
	UNIQUE (tenant, period)
);

CREATE TABLE IF NOT EXISTS dealerai.timeseries_points (
	id              BIGSERIAL PRIMARY KEY,
	tenant          TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	raw_value       DOUBLE PRECISION NOT NULL,
	smoothed_value  DOUBLE PRECISION NOT NULL,
	derived         JSONB,
	UNIQUE (tenant, ts)
);

CREATE TABLE IF NOT EXISTS dealerai.benchmarks (
	id          UUID PRIMARY KEY,
	tenant      TEXT NOT NULL,
	period      TIMESTAMPTZ NOT NULL,
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant, period)
);
CREATE INDEX IF NOT EXISTS idx_benchmarks_tenant ON dealerai.benchmarks (tenant, created_at);

CREATE TABLE IF NOT EXISTS dealerai.entity_scores (
	tenant     TEXT NOT NULL,
	period     TIMESTAMPTZ NOT NULL,
	entity_id  TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	result     JSONB NOT NULL,
	PRIMARY KEY (tenant, period, entity_id)
);

CREATE TABLE IF NOT EXISTS dealerai.training_samples (
	id            BIGSERIAL PRIMARY KEY,
	tenant        TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	sample        JSONB NOT NULL,
	observed_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant, entity_id, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_training_samples_tenant ON dealerai.training_samples (tenant, id);
`
