package repository

// Schema definitions for the Churnistic database.
// Compatible with both SQLite and PostgreSQL.

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    issuer TEXT NOT NULL,
    name TEXT NOT NULL,
    network TEXT NOT NULL,
    reward_type TEXT NOT NULL,
    signup_bonus REAL NOT NULL DEFAULT 0,
    min_spend REAL NOT NULL DEFAULT 0,
    min_spend_period INTEGER NOT NULL DEFAULT 0,
    annual_fee REAL NOT NULL DEFAULT 0,
    credit_score_min INTEGER,
    business_card INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_issuer ON cards(issuer);
`

const schemaCardRules = `
CREATE TABLE IF NOT EXISTS issuer_rules (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    rule_type TEXT NOT NULL,
    description TEXT,
    cooldown_period INTEGER NOT NULL DEFAULT 0,
    max_cards INTEGER,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_issuer_rules_card ON issuer_rules(card_id);

CREATE TABLE IF NOT EXISTS velocity_rules (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    max_applications INTEGER NOT NULL,
    period_days INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_velocity_rules_card ON velocity_rules(card_id);

CREATE TABLE IF NOT EXISTS churning_rules (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    bonus_cooldown INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_churning_rules_card ON churning_rules(card_id);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT,
    business_verified INTEGER NOT NULL DEFAULT 0,
    credit_score INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaApplications = `
CREATE TABLE IF NOT EXISTS card_applications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    status TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    approved_at TIMESTAMP,
    closed_at TIMESTAMP,
    bonus_earned_at TIMESTAMP,
    spend_progress REAL NOT NULL DEFAULT 0,
    spend_deadline TIMESTAMP,
    annual_fee_paid INTEGER NOT NULL DEFAULT 0,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_applications_user ON card_applications(user_id);
CREATE INDEX IF NOT EXISTS idx_applications_user_card ON card_applications(user_id, card_id);
CREATE INDEX IF NOT EXISTS idx_applications_applied ON card_applications(user_id, applied_at);
`

const schemaRetentionOffers = `
CREATE TABLE IF NOT EXISTS retention_offers (
    id TEXT PRIMARY KEY,
    application_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    points_offered REAL,
    statement_credit REAL,
    spend_required REAL,
    offer_date TIMESTAMP NOT NULL,
    accepted INTEGER,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_retention_offers_application ON retention_offers(application_id);
`

const schemaBanks = `
CREATE TABLE IF NOT EXISTS banks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    website TEXT,
    logo TEXT,
    bonus_cooldown INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS bank_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    bank_id TEXT NOT NULL,
    account_type TEXT NOT NULL,
    minimum_balance REAL,
    months_fee_waived INTEGER,
    notes TEXT,
    opened_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON bank_accounts(user_id);

CREATE TABLE IF NOT EXISTS bonuses (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    amount REAL NOT NULL,
    description TEXT
);

CREATE INDEX IF NOT EXISTS idx_bonuses_account ON bonuses(account_id);

CREATE TABLE IF NOT EXISTS bonus_requirements (
    id TEXT PRIMARY KEY,
    bonus_id TEXT NOT NULL,
    type TEXT NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    count INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMP NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_requirements_bonus ON bonus_requirements(bonus_id);
`

const schemaAccountEvents = `
CREATE TABLE IF NOT EXISTS direct_deposits (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    amount REAL NOT NULL,
    source TEXT,
    date TIMESTAMP NOT NULL,
    verified INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_deposits_account ON direct_deposits(account_id);

CREATE TABLE IF NOT EXISTS debit_transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    amount REAL NOT NULL,
    description TEXT,
    date TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_debits_account ON debit_transactions(account_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    message TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCards,
		schemaCardRules,
		schemaUsers,
		schemaApplications,
		schemaRetentionOffers,
		schemaBanks,
		schemaAccounts,
		schemaAccountEvents,
		schemaRuleConfigs,
	}
}
