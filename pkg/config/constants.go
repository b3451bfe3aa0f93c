package config

const (
	EnvPrefix = "SHOPLANE"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "SHOPLANE_DB_DSN"
	EnvDBHost = "SHOPLANE_DB_HOST"
	EnvDBUser = "SHOPLANE_DB_USER"
	EnvDBName = "SHOPLANE_DB_NAME"

	ServiceKindAPI             = "api"
	ServiceKindCronWorker      = "cron-worker"
	ServiceKindOutboxPublisher = "outbox-publisher"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
