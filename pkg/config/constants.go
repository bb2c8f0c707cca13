package config

const (
	// EnvPrefix is passed to envconfig.Process; individual fields carry the
	// full variable name in their tags so the prefix stays informational.
	EnvPrefix = "CAPMATCH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "CAPMATCH_APP_ENV"
	EnvPort                   = "CAPMATCH_APP_PORT"
	EnvDBDSN                  = "CAPMATCH_DB_DSN"
	EnvDBHost                 = "CAPMATCH_DB_HOST"
	EnvDBUser                 = "CAPMATCH_DB_USER"
	EnvDBName                 = "CAPMATCH_DB_NAME"
	EnvRedisURL               = "CAPMATCH_REDIS_URL"
	EnvJWTSecret              = "CAPMATCH_JWT_SECRET"
	EnvJWTIssuer              = "CAPMATCH_JWT_ISSUER"
	EnvJWTExpMins             = "CAPMATCH_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "CAPMATCH_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "CAPMATCH_GCP_PROJECT_ID"
	EnvInviteTokenTTL         = "CAPMATCH_INVITE_TOKEN_TTL"
	EnvPubSubDomainTopic      = "CAPMATCH_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub        = "CAPMATCH_PUBSUB_DOMAIN_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
