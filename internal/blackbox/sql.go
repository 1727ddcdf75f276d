package blackbox

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time DATETIME NOT NULL,
    vehicle    TEXT NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS frames (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   INTEGER NOT NULL REFERENCES sessions(id),
    timestamp_us INTEGER NOT NULL,
    armed        INTEGER NOT NULL,
    failsafe     INTEGER NOT NULL,
    throttle     REAL NOT NULL,
    roll         REAL NOT NULL,
    pitch        REAL NOT NULL,
    yaw          REAL NOT NULL,
    phi          REAL NOT NULL,
    theta        REAL NOT NULL,
    psi          REAL NOT NULL,
    m1           REAL NOT NULL,
    m2           REAL NOT NULL,
    m3           REAL NOT NULL,
    m4           REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   INTEGER NOT NULL REFERENCES sessions(id),
    timestamp_us INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    detail       TEXT
);`

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_frames_session_time ON frames (session_id, timestamp_us);
CREATE INDEX IF NOT EXISTS idx_events_session_time ON events (session_id, timestamp_us);`

const insertSessionSQL = `
INSERT INTO sessions (start_time,
                      vehicle,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

const selectSessionSQL = `
SELECT
    id,
    start_time,
    vehicle,
    config
FROM sessions
WHERE
    id = ?`

const selectSessionsSQL = `
SELECT
    id,
    start_time,
    vehicle,
    config
FROM sessions
ORDER BY start_time`

const insertFrameSQL = `
INSERT INTO frames (session_id,
                    timestamp_us,
                    armed,
                    failsafe,
                    throttle,
                    roll,
                    pitch,
                    yaw,
                    phi,
                    theta,
                    psi,
                    m1, m2, m3, m4)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertEventSQL = `
INSERT INTO events (session_id,
                    timestamp_us,
                    kind,
                    detail)
VALUES (?, ?, ?, ?)`

const selectFramesSQL = `
SELECT
    id,
    session_id,
    timestamp_us,
    armed,
    failsafe,
    throttle,
    roll,
    pitch,
    yaw,
    phi,
    theta,
    psi,
    m1, m2, m3, m4
FROM frames
WHERE
    session_id = ?
    AND timestamp_us >= ?
    AND timestamp_us <= ?
ORDER BY timestamp_us`

const selectEventsSQL = `
SELECT
    id,
    session_id,
    timestamp_us,
    kind,
    detail
FROM events
WHERE
    session_id = ?
ORDER BY timestamp_us`
