// Package api provides the read-only operator REST API of GovIndexor
// @title GovIndexor API
// @version 1.0
// @description Read-only operator API for namespaces, checkpoints, sources and entities indexed by GovIndexor
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/GovIndexor
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
