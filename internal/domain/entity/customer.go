// Package entity holds the persisted domain types of the customer import.
package entity

// CustomerTableName is the table customers are imported into.
const CustomerTableName = "customers"

// Customer is one imported customer record. All fields are kept as the strings read from the file.
// The parquet tags describe the archive schema.
type Customer struct {
	ID        string `gorm:"column:id;primaryKey" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `gorm:"column:first_name" parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `gorm:"column:last_name" parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Email     string `gorm:"column:email" parquet:"name=email, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `gorm:"column:gender" parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContactNo string `gorm:"column:contact_no" parquet:"name=contact_no, type=BYTE_ARRAY, convertedtype=UTF8"`
	Country   string `gorm:"column:country" parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	DOB       string `gorm:"column:dob" parquet:"name=dob, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName specifies the table name for Customer.
func (Customer) TableName() string {
	return CustomerTableName
}

// CustomerFields are the CSV column names in file order.
var CustomerFields = []string{"id", "firstName", "lastName", "email", "gender", "contactNo", "country", "dob"}

// CustomerUpdateColumns are the columns overwritten when an id is imported again.
var CustomerUpdateColumns = []string{"first_name", "last_name", "email", "gender", "contact_no", "country", "dob"}

// IsBlank reports whether every field is empty.
func (c *Customer) IsBlank() bool {
	return c.ID == "" && c.FirstName == "" && c.LastName == "" && c.Email == "" &&
		c.Gender == "" && c.ContactNo == "" && c.Country == "" && c.DOB == ""
}
