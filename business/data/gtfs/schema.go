package gtfs

// Schema is the table layout the schedule store is queried with.
// Times are seconds after service day midnight and may exceed 24 hours, dates are YYYYMMDD integers.
const Schema = `
create table if not exists routes (
	route_id         text primary key,
	route_short_name text,
	route_long_name  text,
	route_color      text
);

create table if not exists stops (
	stop_id   text primary key,
	stop_name text,
	stop_lat  real,
	stop_lon  real
);

create table if not exists trips (
	trip_id       text primary key,
	route_id      text not null,
	service_id    text not null,
	trip_headsign text
);

create table if not exists stop_times (
	trip_id             text    not null,
	stop_sequence       integer not null,
	stop_id             text    not null,
	arrival_timestamp   integer not null,
	departure_timestamp integer not null,
	primary key (trip_id, stop_sequence)
);

create table if not exists calendar (
	service_id text primary key,
	monday     integer not null,
	tuesday    integer not null,
	wednesday  integer not null,
	thursday   integer not null,
	friday     integer not null,
	saturday   integer not null,
	sunday     integer not null,
	start_date integer,
	end_date   integer
);

create table if not exists calendar_dates (
	service_id     text    not null,
	date           integer not null,
	exception_type integer not null,
	primary key (service_id, date)
);

create index if not exists calendar_dates_date on calendar_dates (date);
`
