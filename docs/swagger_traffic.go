package docs

// @title           Traffic Service API
// @version         1.0
// @description     Traffic service ingests anonymous GPS fixes, builds a crowd-sourced congestion picture per grid cell, manages community-reported road events with confidence voting, and plans traffic-aware routes.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
