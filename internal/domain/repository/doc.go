// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente (memoria o PostgreSQL).
//
// Las implementaciones concretas viven en internal/store/memory e internal/store/pg.
//
// Arquitectura:
//
//	┌─────────────────────────────────────────────────────┐
//	│      vault / session / apikey (services)            │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	│  CredentialRepository, RefreshTokenRepository, ...  │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	              ┌─────────┴─────────┐
//	              ▼                   ▼
//	       ┌─────────────┐     ┌─────────────┐
//	       │   memory    │     │     pg      │
//	       └─────────────┘     └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Los secretos llegan ya cifrados o hasheados; los repositorios nunca ven plaintext
//   - Errores de dominio están en errors.go
package repository
