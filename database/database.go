package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"ordenes-service/config"
)

// InitDB opens the MySQL pool and applies the schema.
func InitDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.ClientFoundRows = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// usuario_activo is NULL for inactive carts, so the unique key only binds the
// active one.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS carritos (
		id INT AUTO_INCREMENT PRIMARY KEY,
		usuario_id INT NOT NULL,
		activo BOOLEAN NOT NULL DEFAULT TRUE,
		usuario_activo INT GENERATED ALWAYS AS (IF(activo, usuario_id, NULL)) STORED,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_carritos_usuario_activo (usuario_activo),
		KEY idx_carritos_usuario (usuario_id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS items_carrito (
		id INT AUTO_INCREMENT PRIMARY KEY,
		carrito_id INT NOT NULL,
		producto_id INT NOT NULL,
		cantidad INT NOT NULL DEFAULT 1,
		precio_unitario DECIMAL(10,2) NOT NULL,
		nombre_producto VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_items_carrito_producto (carrito_id, producto_id),
		CONSTRAINT fk_items_carrito FOREIGN KEY (carrito_id) REFERENCES carritos(id) ON DELETE CASCADE,
		CONSTRAINT chk_items_cantidad CHECK (cantidad >= 1)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS ordenes (
		id INT AUTO_INCREMENT PRIMARY KEY,
		usuario_id INT NOT NULL,
		total DECIMAL(10,2) NOT NULL DEFAULT 0,
		estado ENUM('pendiente','pagada','enviada','entregada','cancelada') NOT NULL DEFAULT 'pendiente',
		fecha_entrega DATETIME NULL,
		direccion_envio VARCHAR(255) NOT NULL,
		metodo_pago VARCHAR(255) NOT NULL,
		referencia_pago VARCHAR(255) NULL,
		notas TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_ordenes_usuario (usuario_id, created_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS detalles_orden (
		id INT AUTO_INCREMENT PRIMARY KEY,
		orden_id INT NOT NULL,
		producto_id INT NOT NULL,
		cantidad INT NOT NULL DEFAULT 1,
		precio_unitario DECIMAL(10,2) NOT NULL,
		subtotal DECIMAL(10,2) NOT NULL,
		nombre_producto VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT fk_detalles_orden FOREIGN KEY (orden_id) REFERENCES ordenes(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}
