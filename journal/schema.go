package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	tag TEXT NOT NULL,
	instrument TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	direction TEXT NOT NULL,
	volume REAL NOT NULL,
	entry REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	outcome TEXT NOT NULL,
	profit REAL NOT NULL,
	balance REAL NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at);
CREATE INDEX IF NOT EXISTS idx_trades_tag ON trades(tag);
`
