package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// orderSchema describes the structural shape of an inbound order: field
// presence, JSON types (integral customer_id/quantity/timestamp), positive
// ranges, and the status enum.
func orderSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"order_id": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"customer_id": map[string]interface{}{
				"type":             "integer",
				"exclusiveMinimum": 0,
			},
			"product_id": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"quantity": map[string]interface{}{
				"type":             "integer",
				"exclusiveMinimum": 0,
			},
			"unit_price": map[string]interface{}{
				"type":             "number",
				"exclusiveMinimum": 0,
			},
			"total": map[string]interface{}{
				"type":             "number",
				"exclusiveMinimum": 0,
			},
			"timestamp": map[string]interface{}{
				"type":             "integer",
				"exclusiveMinimum": 0,
			},
			"status": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{StatusPending, StatusAccepted, StatusDenied},
			},
		},
		"required": []string{
			"order_id", "customer_id", "product_id", "quantity",
			"unit_price", "total", "timestamp", "status",
		},
	}
}

var compiledOrderSchema = mustCompileSchema(orderSchema())

func mustCompileSchema(schemaMap map[string]interface{}) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	schemaJSON, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal order schema: %v", err))
	}
	if err := compiler.AddResource("order.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("add order schema resource: %v", err))
	}
	schema, err := compiler.Compile("order.json")
	if err != nil {
		panic(fmt.Sprintf("compile order schema: %v", err))
	}
	return schema
}

// DecodeOrder parses and validates a raw order payload. It returns a
// descriptive error for malformed input; callers treat that as an ordinary
// outcome, never a fatal one.
func DecodeOrder(raw []byte) (Order, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Order{}, fmt.Errorf("order is not valid JSON: %w", err)
	}

	if err := compiledOrderSchema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return Order{}, fmt.Errorf("order failed schema validation at %q: %s",
				ve.InstanceLocation, ve.Message)
		}
		return Order{}, fmt.Errorf("order failed schema validation: %w", err)
	}

	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return Order{}, fmt.Errorf("order decode failed: %w", err)
	}

	if err := ValidateOrder(&order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// ValidateOrder checks an already-decoded order against business rules.
// Redundant with the schema for stream input, but it also guards orders
// constructed in-process.
func ValidateOrder(order *Order) error {
	if order.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if order.CustomerID <= 0 {
		return fmt.Errorf("customer_id must be positive, got %d", order.CustomerID)
	}
	if order.ProductID == "" {
		return fmt.Errorf("product_id is required")
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", order.Quantity)
	}
	if order.UnitPrice <= 0 {
		return fmt.Errorf("unit_price must be positive, got %f", order.UnitPrice)
	}
	if order.Total <= 0 {
		return fmt.Errorf("total must be positive, got %f", order.Total)
	}
	if order.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive epoch milliseconds, got %d", order.Timestamp)
	}

	validStatuses := map[string]bool{StatusPending: true, StatusAccepted: true, StatusDenied: true}
	if !validStatuses[order.Status] {
		return fmt.Errorf("invalid status: %s", order.Status)
	}

	return nil
}

// OrderIDFromRaw extracts order_id from a payload that failed validation, so
// failure results can still reference the offending order. Returns "" when
// the field is absent or unreadable.
func OrderIDFromRaw(raw []byte) string {
	var partial struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return ""
	}
	return partial.OrderID
}
