package gorm

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// OnConflictClause builds an upsert clause keyed on the columns carrying the given gorm tag setting
// (usually "primaryKey").
func OnConflictClause(entity interface{}, setting string, doUpdates clause.Set) clause.OnConflict {
	settingColumns := CollectTaggedColumns(entity, setting)
	columns := make([]clause.Column, len(settingColumns))
	for i, column := range settingColumns {
		columns[i] = clause.Column{Name: column}
	}

	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: doUpdates,
	}
}

var namingStrategy schema.NamingStrategy

func CollectTaggedColumns(entity interface{}, setting string) []string {
	setting = strings.ToUpper(setting)
	entityType, ok := entity.(reflect.Type)
	if !ok {
		entityType = reflect.TypeOf(entity)
	}

	for entityType.Kind() == reflect.Ptr || entityType.Kind() == reflect.Slice {
		entityType = entityType.Elem()
	}

	taggedColumns := make([]string, 0)
	for i := 0; i < entityType.NumField(); i++ {
		field := entityType.Field(i)
		tag, ok := field.Tag.Lookup("gorm")
		if !ok {
			continue
		}

		tagSettings := schema.ParseTagSetting(tag, ";")
		if _, ok := tagSettings["EMBEDDED"]; ok {
			taggedColumns = append(taggedColumns, CollectTaggedColumns(field.Type, setting)...)
			continue
		}

		if _, ok := tagSettings[setting]; !ok {
			continue
		}

		columnName, ok := tagSettings["COLUMN"]
		if !ok {
			columnName = namingStrategy.ColumnName("", field.Name)
		}

		taggedColumns = append(taggedColumns, columnName)
	}

	return taggedColumns
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
