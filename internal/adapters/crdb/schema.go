package crdb

// Schema creates the tables the repository expects. Tests and local
// bootstrap apply it; production schemas are managed out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS flights (
	id UUID PRIMARY KEY,
	capacity INT NOT NULL CHECK (capacity > 0),
	booked_seats INT NOT NULL DEFAULT 0 CHECK (booked_seats >= 0 AND booked_seats <= capacity),
	fares JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	flight_id UUID NOT NULL REFERENCES flights (id),
	user_id UUID NOT NULL,
	passengers JSONB NOT NULL,
	fare_class TEXT NOT NULL,
	total_price NUMERIC NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled')),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reservations_user_idx ON reservations (user_id);
CREATE INDEX IF NOT EXISTS reservations_flight_idx ON reservations (flight_id);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT NOT NULL
);
`
